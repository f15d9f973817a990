package app

import (
	"fmt"
	"io"

	"blustash/internal/blustash"
)

// consoleProgress prints coarse scan progress to a writer. Directory events
// are throttled; file batches are rare enough to print every time.
type consoleProgress struct {
	w io.Writer
}

func newConsoleProgress(w io.Writer) *consoleProgress {
	return &consoleProgress{w: w}
}

func (p *consoleProgress) DirScanned(current, total int) {
	if current%100 == 0 || current == total {
		fmt.Fprintf(p.w, "directories %d/%d\n", current, total)
	}
}

func (p *consoleProgress) FileBatch(current, total int) {
	fmt.Fprintf(p.w, "files %d/%d\n", current, total)
}

// Compile-time check that consoleProgress implements blustash.ProgressObserver
var _ blustash.ProgressObserver = (*consoleProgress)(nil)
