package blustash

// ProgressObserver receives scan progress events. Implementations must be
// cheap; the scanner calls DirScanned after every directory and FileBatch
// after every committed file batch. Purely observational.
type ProgressObserver interface {
	DirScanned(current, total int)
	FileBatch(current, total int)
}

// NopProgress is a ProgressObserver that ignores all events.
type NopProgress struct{}

func (NopProgress) DirScanned(int, int) {}
func (NopProgress) FileBatch(int, int)  {}
