package console

// NullConsole discards everything. Dispatch against it still produces
// execution records, matching the behavior when no host is attached.
type NullConsole struct{}

func (NullConsole) Echo(string) error    { return nil }
func (NullConsole) Execute(string) error { return nil }
func (NullConsole) Close() error         { return nil }
