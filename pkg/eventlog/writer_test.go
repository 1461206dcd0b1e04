package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWriter(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "logs")

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

func TestWriteAndReadEvents(t *testing.T) {
	writer, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	events := []Event{
		{RunID: "run-1", Type: RunStarted, Data: map[string]any{"firmware": "fw.bin"}},
		{RunID: "run-1", Round: 1, Type: PlanGenerated, Data: map[string]any{"plan_id": "fw_plan_1", "options": 2}},
		{RunID: "run-1", Round: 1, Type: DiscoveryEntered, Data: map[string]any{"variable": "sxid"}},
	}
	for _, ev := range events {
		if err := writer.Write(ev); err != nil {
			t.Fatalf("Failed to write event: %v", err)
		}
	}

	read, err := ReadEvents(writer.CurrentLogFile())
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}
	if len(read) != len(events) {
		t.Fatalf("Expected %d events, got %d", len(events), len(read))
	}
	for i, ev := range read {
		if ev.Type != events[i].Type || ev.Round != events[i].Round {
			t.Errorf("Event %d: got %s/%d, want %s/%d", i, ev.Type, ev.Round, events[i].Type, events[i].Round)
		}
		if ev.Time.IsZero() {
			t.Errorf("Event %d has no timestamp", i)
		}
	}
	if read[2].Data["variable"] != "sxid" {
		t.Errorf("Unexpected data: %v", read[2].Data)
	}
	// JSON numbers decode as float64.
	if read[1].Data["options"] != float64(2) {
		t.Errorf("Unexpected option count: %v", read[1].Data["options"])
	}
}

func TestRotationOnDateChange(t *testing.T) {
	tmpDir := t.TempDir()
	writer, err := NewWriter(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	writer.now = func() time.Time { return day }
	if err := writer.Write(Event{Type: RoundStarted}); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
	day = day.Add(2 * time.Minute)
	if err := writer.Write(Event{Type: RoundStarted}); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}

	for _, name := range []string{"events-2026-03-01.jsonl", "events-2026-03-02.jsonl"} {
		events, err := ReadEvents(filepath.Join(tmpDir, name))
		if err != nil {
			t.Fatalf("Failed to read %s: %v", name, err)
		}
		if len(events) != 1 {
			t.Errorf("%s: expected 1 event, got %d", name, len(events))
		}
	}

	files, err := ListLogFiles(tmpDir)
	if err != nil {
		t.Fatalf("Failed to list log files: %v", err)
	}
	// Today's file from NewWriter plus the two dated ones.
	if len(files) < 2 {
		t.Errorf("Expected at least 2 log files, got %v", files)
	}
}

func TestNilWriterDropsEvents(t *testing.T) {
	var w *Writer
	if err := w.Write(Event{Type: RunFinished}); err != nil {
		t.Errorf("nil writer returned %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("nil writer close returned %v", err)
	}
}

func TestReadEventsRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events-x.jsonl")
	if err := os.WriteFile(path, []byte("{\"type\":\"run_started\"}\n\nnot json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadEvents(path); err == nil {
		t.Error("expected parse error")
	}
}
