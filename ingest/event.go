package ingest

// Op describes what happened to a file.
type Op uint8

const (
	// Create is reported when a new entry appears in the directory.
	Create Op = 1 << iota
	// Write is reported when an entry is modified.
	Write
)

func (op Op) String() string {
	switch op {
	case Create:
		return "create"
	case Write:
		return "write"
	case Create | Write:
		return "create|write"
	default:
		return "unknown"
	}
}

// Event is a single file system notification for a path within the watched
// directory.
type Event struct {
	Path string
	Op   Op
}

// Backend delivers file system notifications for a single directory
// (non-recursive).
type Backend interface {
	// Watch subscribes to create and write events in dir and sends them to ch
	// until Close is called. An error is returned if dir cannot be watched.
	Watch(dir string, ch chan<- Event) error

	// Close stops delivering events.
	Close() error
}
