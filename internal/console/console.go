// Package console defines the host console capability the relay forwards
// commands to, and the backends that can stand in for a real host.
package console

// Console is the narrow capability surface the relay consumes. Echo shows
// the command in the host transcript and is fire-and-forget; Execute hands
// the command to the host's own interpreter, whose outcome stays opaque to
// the relay.
type Console interface {
	Echo(text string) error
	Execute(text string) error
	Close() error
}
