package monitor

import (
	"time"

	"github.com/overlaybridge/relay/internal/console"
	"github.com/overlaybridge/relay/internal/events"
	"github.com/overlaybridge/relay/internal/logging"
	"github.com/overlaybridge/relay/internal/model"
	"github.com/overlaybridge/relay/internal/queue"
)

// Recorder persists execution records. The journal and the history store
// both satisfy it.
type Recorder interface {
	Append(rec model.ExecutionRecord) error
}

// Dispatcher hands one command at a time to the console capability and
// emits an execution record for each. It never propagates a failure back
// to the monitor: every error path degrades to a log line.
type Dispatcher struct {
	console   console.Console
	logger    *logging.Logger
	bus       *events.Bus
	recorders []Recorder
}

// NewDispatcher creates a Dispatcher. cons may be nil when no host console
// is attached; commands are then recorded without being executed. bus may
// be nil.
func NewDispatcher(cons console.Console, logger *logging.Logger, bus *events.Bus, recorders ...Recorder) *Dispatcher {
	return &Dispatcher{
		console:   cons,
		logger:    logger,
		bus:       bus,
		recorders: recorders,
	}
}

// Dispatch forwards cmd to the console: echo first (best-effort), then
// execute. The returned record is also journaled and published. Dispatch
// is synchronous; the caller's loop does not advance until it returns.
func (d *Dispatcher) Dispatch(cycleID string, cmd queue.Command) model.ExecutionRecord {
	rec := model.ExecutionRecord{
		CycleID:      cycleID,
		Line:         cmd.Line,
		Command:      cmd.Text,
		DispatchedAt: time.Now().UTC(),
	}

	id, err := model.GenerateID(model.IDTypeRecord)
	if err != nil {
		d.logger.Errorf("record_id error=%v", err)
	} else {
		rec.ID = id
	}

	if d.console != nil {
		if err := d.console.Echo(cmd.Text); err != nil {
			d.logger.Warnf("echo_failed line=%d error=%v", cmd.Line, err)
		} else {
			rec.EchoOK = true
		}

		// The interpreter owns the outcome; an error here is only visible
		// as a log line and never blocks the rest of the batch.
		if err := d.console.Execute(cmd.Text); err != nil {
			d.logger.Warnf("execute_failed line=%d error=%v", cmd.Line, err)
		}
		rec.Executed = true
	} else {
		d.logger.Warnf("console_unavailable line=%d command=%q", cmd.Line, cmd.Text)
	}

	d.logger.Infof("executed line=%d cycle=%s command=%q", cmd.Line, cycleID, cmd.Text)

	for _, r := range d.recorders {
		if err := r.Append(rec); err != nil {
			d.logger.Errorf("record_append error=%v", err)
		}
	}

	if d.bus != nil {
		d.bus.Publish(events.EventCommandDispatched, map[string]interface{}{
			"record_id": rec.ID,
			"cycle_id":  cycleID,
			"line":      cmd.Line,
			"command":   cmd.Text,
		})
	}

	return rec
}
