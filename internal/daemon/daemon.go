// Package daemon runs the relay process: it owns the drop-file monitor,
// the drain triggers (ticker or file watcher), the control socket, and
// graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/overlaybridge/relay/internal/console"
	"github.com/overlaybridge/relay/internal/events"
	"github.com/overlaybridge/relay/internal/history"
	"github.com/overlaybridge/relay/internal/lock"
	"github.com/overlaybridge/relay/internal/logging"
	"github.com/overlaybridge/relay/internal/model"
	"github.com/overlaybridge/relay/internal/monitor"
	"github.com/overlaybridge/relay/internal/notify"
	"github.com/overlaybridge/relay/internal/queue"
	"github.com/overlaybridge/relay/internal/uds"
)

// Daemon is the long-lived relay process.
type Daemon struct {
	relayDir string
	config   model.Config
	logger   *logging.Logger
	logFile  io.Closer

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher
	ticker   *time.Ticker

	store   *queue.Store
	console console.Console
	monitor *monitor.Monitor
	bus     *events.Bus
	journal *events.Journal
	history *history.Store

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	done     chan struct{}
	wg       sync.WaitGroup
	shutdown sync.Once

	forceExit atomic.Bool
}

// New creates a Daemon logging to logs/daemon.log inside relayDir.
func New(relayDir string, cfg model.Config) (*Daemon, error) {
	logPath := filepath.Join(relayDir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}

	return newDaemon(relayDir, cfg, logFile, logFile)
}

// newDaemon is the internal constructor for testing.
func newDaemon(relayDir string, cfg model.Config, w io.Writer, closer io.Closer) (*Daemon, error) {
	cfg.ApplyDefaults()

	logger := logging.New(w, logging.ParseLevel(cfg.Logging.Level), "daemon")

	d := &Daemon{
		relayDir: relayDir,
		config:   cfg,
		logger:   logger,
		logFile:  closer,
		fileLock: lock.NewFileLock(filepath.Join(relayDir, "locks", "daemon.lock")),
		server:   uds.NewServer(filepath.Join(relayDir, uds.DefaultSocketName), logger.WithComponent("uds")),
		ticker:   time.NewTicker(time.Duration(cfg.Poll.IntervalSec) * time.Second),
		done:     make(chan struct{}),
	}

	return d, nil
}

// Run starts the daemon and blocks until shutdown completes.
func (d *Daemon) Run() error {
	// Step 1: Acquire file lock
	if err := os.MkdirAll(filepath.Join(d.relayDir, "locks"), 0755); err != nil {
		return fmt.Errorf("create locks dir: %w", err)
	}
	if err := d.fileLock.TryLock(); err != nil {
		return fmt.Errorf("daemon lock: %w", err)
	}
	d.logger.Infof("daemon starting pid=%d", os.Getpid())

	// Step 2: Wire the drain pipeline
	if err := d.wireMonitor(); err != nil {
		d.cleanup()
		return err
	}

	// Step 3: Register control handlers and start the socket
	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.cleanup()
		return fmt.Errorf("start control socket: %w", err)
	}
	d.logger.Infof("control socket listening on %s", filepath.Join(d.relayDir, uds.DefaultSocketName))

	// Step 4: Start drain triggers
	if d.config.Poll.Mode == model.PollModeWatch {
		if err := d.startWatcher(); err != nil {
			d.cleanup()
			return err
		}
	}
	d.wg.Add(1)
	go d.tickerLoop()

	// Step 5: Initial drain
	d.monitor.Poll()
	d.logger.Infof("daemon ready queue=%s mode=%s interval=%ds",
		d.store.Path(), d.config.Poll.Mode, d.config.Poll.IntervalSec)

	if d.config.Notify.Enabled {
		if err := notify.Send("relay", "daemon started"); err != nil {
			d.logger.Debugf("notify error=%v", err)
		}
	}

	// Step 6: Wait for signals
	d.waitSignals()

	return nil
}

// wireMonitor builds the store, console, journal, history, bus, and the
// monitor that drives them.
func (d *Daemon) wireMonitor() error {
	d.store = queue.NewStore(d.resolvePath(d.config.Queue.File), d.config.Limits.MaxQueueFileBytes)

	cons, err := d.buildConsole()
	if err != nil {
		return err
	}
	d.console = cons

	journal, err := events.OpenJournal(filepath.Join(d.relayDir, "logs", "records.jsonl"), d.config.Limits.MaxJournalBytes)
	if err != nil {
		return fmt.Errorf("open record journal: %w", err)
	}
	d.journal = journal

	recorders := []monitor.Recorder{journal}
	if d.config.History.Enabled {
		hs, err := history.Open(context.Background(), d.resolvePath(d.config.History.File))
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		d.history = hs
		recorders = append(recorders, hs)
	}

	d.bus = events.NewBus(0)

	// Event trace for debug-level runs; the bus drops events when the
	// subscriber lags, so this never backpressures a drain.
	traceLog := d.logger.WithComponent("events")
	d.bus.Subscribe(events.EventQueueDrained, func(e events.Event) {
		traceLog.Debugf("queue_drained data=%v", e.Data)
	})
	d.bus.Subscribe(events.EventCommandDispatched, func(e events.Event) {
		traceLog.Debugf("command_dispatched data=%v", e.Data)
	})

	dispatcher := monitor.NewDispatcher(cons, d.logger.WithComponent("dispatcher"), d.bus, recorders...)
	d.monitor = monitor.New(
		d.store,
		dispatcher,
		d.logger.WithComponent("monitor"),
		d.bus,
		lock.NewMutexMap(),
		d.config.Queue.Drain,
		filepath.Join(d.relayDir, "spool"),
	)
	return nil
}

func (d *Daemon) buildConsole() (console.Console, error) {
	switch d.config.Console.Kind {
	case model.ConsoleExec:
		transcript, err := os.OpenFile(d.resolvePath(d.config.Console.TranscriptFile),
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open transcript: %w", err)
		}
		return &execConsole{ExecConsole: console.NewExecConsole(d.config.Console.Shell, transcript), transcript: transcript}, nil
	case model.ConsoleNull:
		return console.NullConsole{}, nil
	default:
		c, err := console.OpenTranscript(d.resolvePath(d.config.Console.TranscriptFile))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// execConsole pairs an ExecConsole with the transcript file it writes to
// so Close releases the file handle.
type execConsole struct {
	*console.ExecConsole
	transcript *os.File
}

func (c *execConsole) Close() error {
	return c.transcript.Close()
}

// resolvePath resolves a config path against the .relay/ directory.
func (d *Daemon) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.relayDir, path)
}

// startWatcher adds an fsnotify watch on the drop file's directory. Watch
// mode trades the fixed poll cadence for lower latency; drains stay
// serialized by the monitor's path lock either way.
func (d *Daemon) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(d.store.Path())); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(d.store.Path()), err)
	}
	d.watcher = watcher

	d.wg.Add(1)
	go d.watchLoop()
	return nil
}

func (d *Daemon) watchLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Name != d.store.Path() {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				d.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
				d.debounceAndPoll()
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

// debounceAndPoll coalesces bursts of producer appends into one drain.
func (d *Daemon) debounceAndPoll() {
	debounceSec := d.config.Poll.DebounceSec

	d.debounceMu.Lock()
	defer d.debounceMu.Unlock()

	if d.debounceTimer != nil {
		d.debounceTimer.Stop()
	}

	d.debounceTimer = time.AfterFunc(
		time.Duration(debounceSec*float64(time.Second)),
		func() {
			d.logger.Debugf("debounced_poll")
			d.monitor.Poll()
		},
	)
}

// tickerLoop triggers a drain at the configured interval. This is the
// default trigger: the monitor is invoked periodically and decides per
// tick whether there is anything to drain.
func (d *Daemon) tickerLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.done:
			return
		case <-d.ticker.C:
			d.logger.Debugf("tick")
			d.monitor.Poll()
		}
	}
}

// waitSignals blocks until a shutdown signal arrives or a shutdown is
// initiated through the control socket.
func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.logger.Infof("received signal=%s, initiating graceful shutdown", sig)

		// Second signal forces exit
		go func() {
			<-sigCh
			d.logger.Warnf("received second signal, forcing exit")
			d.forceExit.Store(true)
			os.Exit(1)
		}()

		d.Shutdown()
	case <-d.done:
		// Shutdown started elsewhere; Do blocks until it completes.
		d.Shutdown()
	}
}

// Shutdown performs graceful shutdown (idempotent via sync.Once).
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		d.logger.Infof("shutdown started")

		// 1. Stop triggers
		close(d.done)
		d.ticker.Stop()
		d.debounceMu.Lock()
		if d.debounceTimer != nil {
			d.debounceTimer.Stop()
		}
		d.debounceMu.Unlock()
		if d.watcher != nil {
			d.watcher.Close()
		}
		if d.server != nil {
			d.server.Stop()
		}

		// 2. Drain in-flight with timeout
		timeout := d.config.Daemon.ShutdownTimeoutSec

		doneCh := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(doneCh)
		}()

		select {
		case <-doneCh:
			d.logger.Infof("all goroutines drained")
		case <-time.After(time.Duration(timeout) * time.Second):
			d.logger.Warnf("shutdown timeout after %ds, some operations may be incomplete", timeout)
		}

		if d.config.Notify.Enabled {
			if err := notify.Send("relay", "daemon stopped"); err != nil {
				d.logger.Debugf("notify error=%v", err)
			}
		}

		// 3. Cleanup
		d.cleanup()
		d.logger.Infof("daemon stopped")
	})
}

// cleanup releases resources in reverse wiring order.
func (d *Daemon) cleanup() {
	if d.bus != nil {
		d.bus.Close()
	}
	if d.history != nil {
		d.history.Close()
	}
	if d.journal != nil {
		d.journal.Close()
	}
	if d.console != nil {
		d.console.Close()
	}
	os.Remove(filepath.Join(d.relayDir, uds.DefaultSocketName))
	d.fileLock.Unlock()
	if d.logFile != nil {
		d.logFile.Close()
	}
}
