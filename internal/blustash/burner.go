package blustash

import "context"

// BurnResult carries the outcome of one external disc-mastering invocation.
type BurnResult struct {
	ExitCode int
	Output   string
}

// DiscSession describes one recorded session found on a disc.
type DiscSession struct {
	Number int
	Raw    string
}

// Burner is the boundary to the external disc-mastering tool. It consumes a
// mapping manifest generated by the Stager and an output device identifier.
// The Stager never gates the safed flag on a Burner result.
type Burner interface {
	// Burn writes the manifest's mappings to the device as a new session.
	// finalize closes the disc after burning.
	Burn(ctx context.Context, device, mappingFile string, finalize bool) (*BurnResult, error)

	// Sessions lists the sessions already present on the device.
	Sessions(ctx context.Context, device string) ([]DiscSession, error)

	// Extract copies the contents of one disc session into outputDir,
	// creating it if needed.
	Extract(ctx context.Context, device string, session int, outputDir string) (*BurnResult, error)

	// Verify checks the disc's recorded checksums.
	Verify(ctx context.Context, device string) (*BurnResult, error)
}
