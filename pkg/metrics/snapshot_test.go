package metrics

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	rec.MessagesDelivered("email_service", 4)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(reg, &buf))

	out := buf.String()
	assert.Contains(t, out, "# TYPE notifier_messages_delivered_total counter")
	assert.Contains(t, out, `notifier_messages_delivered_total{agent_type="email_service"} 4`)
}

func TestSaveSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusRecorder(reg).AgentRegistered("sms_gateway")
	dir := t.TempDir()

	path, err := SaveSnapshot(reg, dir, time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "metrics-20260301T083000Z.prom"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "notifier_registered_agents")

	_, err = SaveSnapshot(reg, dir+"/missing", time.Now())
	assert.Error(t, err)
}
