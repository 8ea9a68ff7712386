package monitor

import (
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/overlaybridge/relay/internal/console"
	"github.com/overlaybridge/relay/internal/lock"
	"github.com/overlaybridge/relay/internal/logging"
	"github.com/overlaybridge/relay/internal/model"
	"github.com/overlaybridge/relay/internal/queue"
)

// fakeConsole records every Echo and Execute call. onExecute, when set,
// runs inside Execute so tests can interleave producer writes with the
// drain cycle.
type fakeConsole struct {
	mu        sync.Mutex
	echoed    []string
	executed  []string
	echoErr   error
	onExecute func(text string)
}

func (c *fakeConsole) Echo(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.echoErr != nil {
		return c.echoErr
	}
	c.echoed = append(c.echoed, text)
	return nil
}

func (c *fakeConsole) Execute(text string) error {
	c.mu.Lock()
	c.executed = append(c.executed, text)
	fn := c.onExecute
	c.mu.Unlock()
	if fn != nil {
		fn(text)
	}
	return nil
}

func (c *fakeConsole) Close() error { return nil }

// memRecorder collects records in memory.
type memRecorder struct {
	mu      sync.Mutex
	records []model.ExecutionRecord
}

func (r *memRecorder) Append(rec model.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) all() []model.ExecutionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ExecutionRecord(nil), r.records...)
}

func testLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelError, "test")
}

func newTestMonitor(t *testing.T, cons *fakeConsole, drain model.DrainMode) (*Monitor, *queue.Store, *memRecorder) {
	t.Helper()
	dir := t.TempDir()
	store := queue.NewStore(filepath.Join(dir, "commands.txt"), 0)
	rec := &memRecorder{}

	var c console.Console
	if cons != nil {
		c = cons
	}
	dispatcher := NewDispatcher(c, testLogger(), nil, rec)
	mon := New(store, dispatcher, testLogger(), nil, lock.NewMutexMap(), drain, filepath.Join(dir, "spool"))
	return mon, store, rec
}

func TestPoll_EmptyStoreIsNoOp(t *testing.T) {
	cons := &fakeConsole{}
	mon, _, rec := newTestMonitor(t, cons, model.DrainTruncate)

	mon.Poll()

	if len(cons.executed) != 0 {
		t.Errorf("expected no executions, got %v", cons.executed)
	}
	if len(rec.all()) != 0 {
		t.Errorf("expected no records, got %d", len(rec.all()))
	}
}

func TestPoll_DispatchesInFileOrderAndClears(t *testing.T) {
	cons := &fakeConsole{}
	mon, store, rec := newTestMonitor(t, cons, model.DrainTruncate)

	if err := store.Append("tgm", "# cheat on", "player.additem f 100"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	mon.Poll()

	want := []string{"tgm", "player.additem f 100"}
	if len(cons.executed) != len(want) {
		t.Fatalf("expected %d executions, got %v", len(want), cons.executed)
	}
	for i, w := range want {
		if cons.executed[i] != w {
			t.Errorf("execution %d: got %q, want %q", i, cons.executed[i], w)
		}
	}

	if store.HasWork() {
		t.Error("drop file not cleared after drain")
	}

	records := rec.all()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].CycleID == "" || records[0].CycleID != records[1].CycleID {
		t.Errorf("records must share one cycle id, got %q and %q", records[0].CycleID, records[1].CycleID)
	}
	if records[0].Line != 1 || records[1].Line != 3 {
		t.Errorf("line numbers wrong: %d, %d", records[0].Line, records[1].Line)
	}
}

func TestPoll_CommentsOnlyStillClears(t *testing.T) {
	cons := &fakeConsole{}
	mon, store, rec := newTestMonitor(t, cons, model.DrainTruncate)

	if err := store.Append("# just a note", "", "# another"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	mon.Poll()

	if len(cons.executed) != 0 {
		t.Errorf("comments must not execute, got %v", cons.executed)
	}
	if len(rec.all()) != 0 {
		t.Errorf("comments must not record, got %d records", len(rec.all()))
	}
	if store.HasWork() {
		t.Error("comments-only content must still be cleared")
	}
}

func TestPoll_NilConsoleStillRecordsAndClears(t *testing.T) {
	mon, store, rec := newTestMonitor(t, nil, model.DrainTruncate)

	if err := store.Append("tgm"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	mon.Poll()

	records := rec.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Executed {
		t.Error("record must not claim execution without a console")
	}
	if records[0].EchoOK {
		t.Error("record must not claim echo without a console")
	}
	if store.HasWork() {
		t.Error("drop file must be cleared even without a console")
	}
}

// An append landing between the snapshot and the truncate is lost in
// truncate mode. This pins the documented behavior rather than guarding
// against it.
func TestPoll_TruncateLosesMidCycleAppend(t *testing.T) {
	cons := &fakeConsole{}
	mon, store, _ := newTestMonitor(t, cons, model.DrainTruncate)

	cons.onExecute = func(string) {
		if err := store.Append("late arrival"); err != nil {
			t.Errorf("mid-cycle append failed: %v", err)
		}
	}

	if err := store.Append("tgm"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	mon.Poll()

	if store.HasWork() {
		t.Error("truncate mode must clear the mid-cycle append along with the batch")
	}

	cons.onExecute = nil
	mon.Poll()
	if len(cons.executed) != 1 {
		t.Errorf("lost command must not execute later, executed=%v", cons.executed)
	}
}

// Rename mode moves the file aside before parsing, so the same mid-cycle
// append lands in a fresh drop file and survives to the next cycle.
func TestPoll_RenamePreservesMidCycleAppend(t *testing.T) {
	cons := &fakeConsole{}
	mon, store, _ := newTestMonitor(t, cons, model.DrainRename)

	cons.onExecute = func(string) {
		cons.mu.Lock()
		first := len(cons.executed) == 1
		cons.mu.Unlock()
		if first {
			if err := store.Append("late arrival"); err != nil {
				t.Errorf("mid-cycle append failed: %v", err)
			}
		}
	}

	if err := store.Append("tgm"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	mon.Poll()

	if !store.HasWork() {
		t.Fatal("rename mode must preserve the mid-cycle append")
	}

	mon.Poll()

	want := []string{"tgm", "late arrival"}
	if len(cons.executed) != len(want) {
		t.Fatalf("expected %v, got %v", want, cons.executed)
	}
	for i, w := range want {
		if cons.executed[i] != w {
			t.Errorf("execution %d: got %q, want %q", i, cons.executed[i], w)
		}
	}
}

func TestPoll_SeparateCyclesGetSeparateIDs(t *testing.T) {
	cons := &fakeConsole{}
	mon, store, rec := newTestMonitor(t, cons, model.DrainTruncate)

	store.Append("first")
	mon.Poll()
	store.Append("second")
	mon.Poll()

	records := rec.all()
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].CycleID == records[1].CycleID {
		t.Error("separate drain cycles must not share a cycle id")
	}
}
