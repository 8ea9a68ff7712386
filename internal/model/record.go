package model

import "time"

// ExecutionRecord documents one dispatched command. It records that the
// command was handed to the console, not whether the host accepted it;
// the interpreter's outcome is opaque by contract.
type ExecutionRecord struct {
	ID           string    `json:"id"`
	CycleID      string    `json:"cycle_id"`
	Line         int       `json:"line"`
	Command      string    `json:"command"`
	DispatchedAt time.Time `json:"dispatched_at"`
	EchoOK       bool      `json:"echo_ok"`
	Executed     bool      `json:"executed"`
}
