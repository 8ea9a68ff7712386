// Package monitor drives the drain cycle: probe the drop file, parse it,
// dispatch each command in file order, clear the file.
package monitor

import (
	"github.com/google/uuid"

	"github.com/overlaybridge/relay/internal/events"
	"github.com/overlaybridge/relay/internal/lock"
	"github.com/overlaybridge/relay/internal/logging"
	"github.com/overlaybridge/relay/internal/model"
	"github.com/overlaybridge/relay/internal/queue"
)

// Monitor runs at most one drain cycle per Poll invocation. It holds no
// state between invocations; the drop file is the only state there is.
type Monitor struct {
	store      *queue.Store
	dispatcher *Dispatcher
	logger     *logging.Logger
	bus        *events.Bus
	locks      *lock.MutexMap
	drainMode  model.DrainMode
	spoolDir   string
}

// New creates a Monitor. locks serializes drain cycles across the ticker,
// the control socket, and the optional file watcher; bus may be nil.
func New(store *queue.Store, dispatcher *Dispatcher, logger *logging.Logger, bus *events.Bus, locks *lock.MutexMap, drainMode model.DrainMode, spoolDir string) *Monitor {
	if drainMode == "" {
		drainMode = model.DrainTruncate
	}
	return &Monitor{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		bus:        bus,
		locks:      locks,
		drainMode:  drainMode,
		spoolDir:   spoolDir,
	}
}

// Poll runs one drain cycle. An empty or missing drop file is a no-op; an
// unreadable one is treated the same and retried next tick. When content
// is present the whole snapshot is dispatched in file order and the store
// is cleared unconditionally, even if every line was a comment or a
// command misbehaved. No error ever surfaces to the invoking tick.
func (m *Monitor) Poll() {
	m.locks.Lock(m.store.Path())
	defer m.locks.Unlock(m.store.Path())

	if !m.store.HasWork() {
		return
	}

	text, err := m.snapshot()
	if err != nil {
		m.logger.Warnf("snapshot error=%v", err)
		return
	}

	cycleID := uuid.NewString()
	commands := queue.Parse(text)
	m.logger.Debugf("drain_start cycle=%s commands=%d bytes=%d", cycleID, len(commands), len(text))

	for _, cmd := range commands {
		m.dispatcher.Dispatch(cycleID, cmd)
	}

	// Terminal clear. In rename mode the snapshot already emptied the
	// store; appends racing the truncate here are the documented loss.
	if m.drainMode == model.DrainTruncate {
		if err := m.store.Clear(); err != nil {
			m.logger.Errorf("clear cycle=%s error=%v", cycleID, err)
		}
	}

	m.logger.Infof("drain_complete cycle=%s dispatched=%d", cycleID, len(commands))

	if m.bus != nil {
		m.bus.Publish(events.EventQueueDrained, map[string]interface{}{
			"cycle_id":   cycleID,
			"dispatched": len(commands),
		})
	}
}

func (m *Monitor) snapshot() (string, error) {
	if m.drainMode == model.DrainRename {
		return m.store.DrainRename(m.spoolDir)
	}
	return m.store.Snapshot()
}
