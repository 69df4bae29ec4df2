package preflight

// Plan selects which destination checks run before a series run touches the filesystem.
type Plan struct {
	DestinationAccessible bool
	DestinationWritable   bool
	// RequireMount refuses destinations that resolve to the system disk (unix)
	// or to a missing volume (windows).
	RequireMount bool
}
