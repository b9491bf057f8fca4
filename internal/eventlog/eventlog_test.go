package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRecordWritesOneJSONLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.ProviderCall("job-1", "worker-1", "openai", "gpt-4o", 10*time.Millisecond, nil)
	l.ProviderCall("job-1", "worker-1", "anthropic", "claude-3-5-sonnet-20241022", 5*time.Millisecond, errors.New("boom"))

	scanner := bufio.NewScanner(&buf)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first event: %v", err)
	}
	if first.Provider != "openai" || !first.Success {
		t.Errorf("first event = %+v, want provider=openai success=true", first)
	}

	var second Event
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("unmarshal second event: %v", err)
	}
	if second.Success || second.Error != "boom" {
		t.Errorf("second event = %+v, want success=false error=boom", second)
	}
}

func TestClaimRecordsOutcome(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)

	l.Claim("job-2", "worker-3", true, nil)

	var e Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != "claim" || !e.Success {
		t.Errorf("event = %+v, want kind=claim success=true", e)
	}
}
