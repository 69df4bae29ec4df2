package hook

// Plan holds the shell commands run around a series run.
type Plan struct {
	Enabled bool

	PreRunCommands  []string
	PostRunCommands []string

	// FailFast aborts on the first failing command instead of logging it.
	FailFast bool
}
