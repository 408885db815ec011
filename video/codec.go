package video

// Decoder is the contract for a seekable file decoder. Implementations
// wrap an external codec binding; this module never decodes video
// itself.
//
// A Decoder is owned by a single goroutine for all I/O calls: Grab,
// Retrieve, Seek and Position are never safe for concurrent use.
type Decoder interface {
	// FPS returns the stream frame rate.
	FPS() float64

	// FrameCount returns the number of frames in the file. Container
	// metadata can overstate this on some formats.
	FrameCount() int64

	// Width returns the frame width in pixels.
	Width() int

	// Height returns the frame height in pixels.
	Height() int

	// Position returns the 1-based index of the next frame to be
	// grabbed.
	Position() int64

	// Seek positions the decoder at a 1-based frame index. Seeking is
	// unreliable on some compressed formats; callers decode
	// sequentially from an earlier point and discard when exactness
	// matters.
	Seek(index int64) error

	// Grab acquires the next compressed frame. Returns false on
	// failure (transient decode error or end of media).
	Grab() bool

	// Retrieve decodes the last grabbed frame.
	Retrieve() (*Frame, error)

	// Release frees the decode handle. Idempotent.
	Release() error
}

// Encoder is the contract for a frame writer bound to one output file.
//
// An Encoder is owned by a single goroutine for all Write calls.
type Encoder interface {
	// Write encodes one frame. Frames must match the dimensions the
	// encoder was opened with.
	Write(f *Frame) error

	// Release flushes and frees the encode handle. Idempotent.
	Release() error
}
