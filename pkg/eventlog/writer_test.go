package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleRecord(action, status string) Record {
	return Record{
		AgentID:   "push_notification_1a2b3c4d",
		AgentType: "push_notification",
		AgentName: "Push Notification Service",
		Action:    action,
		Status:    status,
		Details:   map[string]any{"execution_time": 0.25},
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewWriter(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "logs")

	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	currentFile := writer.CurrentLogFile()
	if currentFile == "" {
		t.Fatal("No current log file set")
	}
	if _, err := os.Stat(currentFile); os.IsNotExist(err) {
		t.Error("Current log file does not exist")
	}
}

func TestWriteAndReadRecords(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	want := []Record{
		sampleRecord(ActionSendMessage, StatusAttempt),
		sampleRecord(ActionSendMessage, StatusSuccess),
		sampleRecord(ActionProcess, StatusFailure),
	}
	for _, rec := range want {
		if err := writer.Write(rec); err != nil {
			t.Fatalf("Failed to write record: %v", err)
		}
	}

	got, err := ReadRecords(writer.CurrentLogFile())
	if err != nil {
		t.Fatalf("Failed to read records: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Action != want[i].Action || got[i].Status != want[i].Status {
			t.Errorf("Record %d: expected %s/%s, got %s/%s", i, want[i].Action, want[i].Status, got[i].Action, got[i].Status)
		}
		if got[i].AgentID != want[i].AgentID {
			t.Errorf("Record %d: agent id mismatch: %s", i, got[i].AgentID)
		}
		if got[i].Details["execution_time"] != 0.25 {
			t.Errorf("Record %d: details not preserved: %v", i, got[i].Details)
		}
	}
}

func TestWriterRotatesDaily(t *testing.T) {
	tmpDir := t.TempDir()
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	writer, err := newWriter(tmpDir, func() time.Time { return day })
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(sampleRecord(ActionProcess, StatusSuccess)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	day = day.Add(2 * time.Minute)
	if err := writer.Write(sampleRecord(ActionProcess, StatusSuccess)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	files, err := ListLogFiles(tmpDir)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 log files after rotation, got %d: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "audit-2026-03-01.jsonl" || filepath.Base(files[1]) != "audit-2026-03-02.jsonl" {
		t.Errorf("Unexpected file names: %v", files)
	}
	for _, f := range files {
		recs, err := ReadRecords(f)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", f, err)
		}
		if len(recs) != 1 {
			t.Errorf("Expected 1 record in %s, got %d", f, len(recs))
		}
	}
}

func TestReadRecordsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit-2026-01-01.jsonl")
	if err := os.WriteFile(path, []byte("{\"agent_id\":\"a\"}\n\nnot json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadRecords(path); err == nil {
		t.Error("Expected parse error for malformed line")
	}
}

func TestReadRecordsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit-2026-01-01.jsonl")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatal(err)
	}
	recs, err := ReadRecords(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Expected no records, got %d", len(recs))
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
	if writer.CurrentLogFile() != "" {
		t.Error("Closed writer should report no current file")
	}
	if err := writer.Write(sampleRecord(ActionStop, StatusSuccess)); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Expected ErrWriterClosed, got %v", err)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Write(Record) error {
	f.calls++
	return errors.New("disk full")
}

func TestMultiSinkAttemptsEverySink(t *testing.T) {
	bad := &failingSink{}
	mem := NewMemorySink()
	multi := MultiSink{bad, mem, Discard}

	err := multi.Write(sampleRecord(ActionStart, StatusSuccess))

	if err == nil {
		t.Error("Expected first sink error to surface")
	}
	if bad.calls != 1 {
		t.Errorf("Expected failing sink to be called once, got %d", bad.calls)
	}
	if len(mem.Records()) != 1 {
		t.Error("Memory sink should still receive the record")
	}
}

func TestMemorySinkFilter(t *testing.T) {
	mem := NewMemorySink()
	_ = mem.Write(sampleRecord(ActionReceiveMessage, StatusReceived))
	_ = mem.Write(sampleRecord(ActionReceiveMessage, StatusFailed))
	other := sampleRecord(ActionReceiveMessage, StatusFailed)
	other.AgentID = "sms_gateway_00000000"
	_ = mem.Write(other)

	if n := len(mem.Filter("", ActionReceiveMessage, StatusFailed)); n != 2 {
		t.Errorf("Expected 2 failed receives, got %d", n)
	}
	if n := len(mem.Filter(other.AgentID, "", "")); n != 1 {
		t.Errorf("Expected 1 record for %s, got %d", other.AgentID, n)
	}
}
