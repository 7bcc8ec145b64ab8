package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// WriteSnapshot gathers every metric family from g and writes it to w in the
// Prometheus text exposition format.
func WriteSnapshot(g prometheus.Gatherer, w io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// SaveSnapshot writes a snapshot to dir/metrics-<UTC timestamp>.prom and
// returns the file path.
func SaveSnapshot(g prometheus.Gatherer, dir string, at time.Time) (string, error) {
	path := filepath.Join(dir, "metrics-"+at.UTC().Format("20060102T150405Z")+".prom")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create metrics snapshot: %w", err)
	}
	if err := WriteSnapshot(g, f); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close metrics snapshot: %w", err)
	}
	return path, nil
}
