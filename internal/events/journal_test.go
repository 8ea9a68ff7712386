package events

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/overlaybridge/relay/internal/model"
)

func testRecord(id string) model.ExecutionRecord {
	return model.ExecutionRecord{
		ID:           id,
		CycleID:      "cycle-1",
		Line:         1,
		Command:      "tgm",
		DispatchedAt: time.Now().UTC(),
		EchoOK:       true,
		Executed:     true,
	}
}

func TestOpenJournal_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	j, err := OpenJournal(path, DefaultMaxJournalSize)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	defer j.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("journal file was not created")
	}
}

func TestJournal_AppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	j, err := OpenJournal(path, DefaultMaxJournalSize)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	defer j.Close()

	want := testRecord("rec_1700000000_deadbeef")
	if err := j.Append(want); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}

	var got model.ExecutionRecord
	if err := json.Unmarshal(data[:len(data)-1], &got); err != nil {
		t.Fatalf("unmarshal entry: %v", err)
	}
	if got.ID != want.ID || got.Command != want.Command || got.Line != want.Line {
		t.Errorf("entry mismatch: got %+v, want %+v", got, want)
	}
}

func TestJournal_Count(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	j, err := OpenJournal(path, DefaultMaxJournalSize)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	defer j.Close()

	for i := 0; i < 3; i++ {
		if err := j.Append(testRecord("rec_1700000000_deadbeef")); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	n, err := j.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 entries, got %d", n)
	}
}

func TestCountEntries_SkipsMalformedIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")

	j, err := OpenJournal(path, DefaultMaxJournalSize)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	defer j.Close()

	if err := j.Append(testRecord("rec_1700000000_deadbeef")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	// A hand-edited entry with a bogus ID parses as JSON but must not
	// count as a record.
	if err := j.Append(testRecord("not-a-record-id")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	n, err := CountEntries(path)
	if err != nil {
		t.Fatalf("CountEntries failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 valid entry, got %d", n)
	}
}

func TestCountEntries_MissingFile(t *testing.T) {
	n, err := CountEntries(filepath.Join(t.TempDir(), "absent.jsonl"))
	if err != nil {
		t.Fatalf("CountEntries on missing file must not fail: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 entries, got %d", n)
	}
}

func TestJournal_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")

	// Size the limit so one entry fits and a second forces rotation.
	sample, err := json.Marshal(testRecord("rec_1700000000_deadbeef"))
	if err != nil {
		t.Fatalf("marshal sample: %v", err)
	}
	maxSize := int64(len(sample)) + 20

	j, err := OpenJournal(path, maxSize)
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	defer j.Close()

	if err := j.Append(testRecord("rec_1700000000_deadbeef")); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	if err := j.Append(testRecord("rec_1700000001_cafebabe")); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "archive"))
	if err != nil {
		t.Fatalf("archive dir missing after rotation: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 archived journal, got %d", len(entries))
	}

	// Current journal holds only the post-rotation entry.
	n, err := j.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 entry in current journal, got %d", n)
	}
}
