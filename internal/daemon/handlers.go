package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/overlaybridge/relay/internal/queue"
	"github.com/overlaybridge/relay/internal/uds"
)

// registerHandlers wires the control socket commands.
func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", d.handlePing)
	d.server.Handle("poll", d.handlePoll)
	d.server.Handle("push", d.handlePush)
	d.server.Handle("status", d.handleStatus)
	d.server.Handle("shutdown", d.handleShutdown)
}

func (d *Daemon) handlePing(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(map[string]any{
		"status": "ok",
		"pid":    os.Getpid(),
	})
}

// handlePoll triggers an immediate drain cycle.
func (d *Daemon) handlePoll(req *uds.Request) *uds.Response {
	d.logger.Debugf("poll requested via control socket")
	d.monitor.Poll()
	return uds.SuccessResponse(map[string]any{
		"polled": true,
	})
}

type pushParams struct {
	Commands []string `json:"commands"`
}

// handlePush appends commands to the drop file on behalf of a local
// producer. The next drain cycle picks them up in append order.
func (d *Daemon) handlePush(req *uds.Request) *uds.Response {
	var params pushParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, fmt.Sprintf("invalid params: %v", err))
		}
	}
	if len(params.Commands) == 0 {
		return uds.ErrorResponse(uds.ErrCodeValidation, "commands must not be empty")
	}
	for _, c := range params.Commands {
		if strings.ContainsRune(c, '\n') {
			return uds.ErrorResponse(uds.ErrCodeValidation, "commands must not contain newlines")
		}
	}

	if err := d.store.Append(params.Commands...); err != nil {
		return uds.ErrorResponse(uds.ErrCodeInternal, fmt.Sprintf("append to queue: %v", err))
	}
	d.logger.Infof("pushed %d command(s) via control socket", len(params.Commands))

	return uds.SuccessResponse(map[string]any{
		"appended": len(params.Commands),
	})
}

func (d *Daemon) handleStatus(req *uds.Request) *uds.Response {
	status := map[string]any{
		"pid":        os.Getpid(),
		"queue_file": d.store.Path(),
		"poll_mode":  string(d.config.Poll.Mode),
	}

	if info, err := os.Stat(d.store.Path()); err == nil {
		status["queue_bytes"] = info.Size()
		if data, err := os.ReadFile(d.store.Path()); err == nil {
			status["queue_pending"] = len(queue.Parse(string(data)))
		}
	} else {
		status["queue_bytes"] = 0
		status["queue_pending"] = 0
	}

	if n, err := d.journal.Count(); err == nil {
		status["records_journaled"] = n
	}

	if d.history != nil {
		if n, err := d.history.Count(context.Background()); err == nil {
			status["records_stored"] = n
		}
	}

	return uds.SuccessResponse(status)
}

func (d *Daemon) handleShutdown(req *uds.Request) *uds.Response {
	d.logger.Infof("shutdown requested via control socket")
	go d.Shutdown()
	return uds.SuccessResponse(map[string]any{
		"shutting_down": true,
	})
}
