package interfaces

// Conn is a client connection as the coordinator sees it: an opaque handle
// plus a thread-safe JSON writer. The WebSocket wrapper implements it; tests
// substitute recording fakes.
type Conn interface {
	// ID returns the connection handle, unique per physical connection.
	ID() string

	// WriteJSON sends a JSON message to the client. Implementations must be
	// safe for use from any goroutine.
	WriteJSON(v interface{}) error

	// Close tears the connection down and releases its resources.
	Close() error
}
