package core

// Frame is a marshaled signaling message ready for the wire.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	// Alive reports whether the connection has not been closed yet. The
	// registry re-checks it before applying a join whose authorization
	// round-trip may have outlived the connection.
	Alive() bool
	Close()
}
