package video

import (
	"fmt"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// openCVDecoder implements Decoder on top of gocv.VideoCapture.
//
// OpenCV's POS_FRAMES property is 0-based; the 1-based translation
// happens here so the rest of the module never sees base-0 indices.
type openCVDecoder struct {
	path string
	cap  *gocv.VideoCapture
	mat  gocv.Mat

	fps    float64
	frames int64
	width  int
	height int

	grabbed  bool
	released bool
}

// OpenDecoder opens a video file through OpenCV and reads its stream
// properties. Fails fast if the file cannot be opened or reports a
// non-positive frame rate.
func OpenDecoder(path string) (Decoder, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("video: open %q: %w", path, err)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		vc.Close()
		return nil, fmt.Errorf("video: %q reports invalid frame rate %g", path, fps)
	}

	return &openCVDecoder{
		path:   path,
		cap:    vc,
		mat:    gocv.NewMat(),
		fps:    fps,
		frames: int64(vc.Get(gocv.VideoCaptureFrameCount)),
		width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

func (d *openCVDecoder) FPS() float64      { return d.fps }
func (d *openCVDecoder) FrameCount() int64 { return d.frames }
func (d *openCVDecoder) Width() int        { return d.width }
func (d *openCVDecoder) Height() int       { return d.height }

func (d *openCVDecoder) Position() int64 {
	return int64(d.cap.Get(gocv.VideoCapturePosFrames)) + 1
}

func (d *openCVDecoder) Seek(index int64) error {
	if index < 1 {
		return fmt.Errorf("video: seek index must be >= 1, got %d", index)
	}
	d.cap.Set(gocv.VideoCapturePosFrames, float64(index-1))
	return nil
}

func (d *openCVDecoder) Grab() bool {
	d.grabbed = d.cap.Read(&d.mat) && !d.mat.Empty()
	return d.grabbed
}

func (d *openCVDecoder) Retrieve() (*Frame, error) {
	if !d.grabbed {
		return nil, fmt.Errorf("video: retrieve without successful grab on %q", d.path)
	}

	// Copy out of the reused Mat so the frame can outlive the next Grab.
	src := d.mat.ToBytes()
	data := make([]byte, len(src))
	copy(data, src)

	return &Frame{
		Data:     data,
		Width:    d.mat.Cols(),
		Height:   d.mat.Rows(),
		Channels: d.mat.Channels(),
		TraceID:  uuid.New().String(),
	}, nil
}

func (d *openCVDecoder) Release() error {
	if d.released {
		return nil
	}
	d.released = true
	d.mat.Close()
	return d.cap.Close()
}

// openCVEncoder implements Encoder on top of gocv.VideoWriter.
type openCVEncoder struct {
	path     string
	writer   *gocv.VideoWriter
	color    bool
	released bool
}

// OpenEncoder opens an output file through OpenCV. fourcc is the
// four-character codec tag (e.g. "MJPG", "XVID").
func OpenEncoder(path, fourcc string, fps float64, width, height int, color bool) (Encoder, error) {
	if len(fourcc) != 4 {
		return nil, fmt.Errorf("video: fourcc must be 4 characters, got %q", fourcc)
	}
	w, err := gocv.VideoWriterFile(path, fourcc, fps, width, height, color)
	if err != nil {
		return nil, fmt.Errorf("video: open writer %q: %w", path, err)
	}
	return &openCVEncoder{path: path, writer: w, color: color}, nil
}

func (e *openCVEncoder) Write(f *Frame) error {
	matType := gocv.MatTypeCV8UC3
	if f.Channels == 1 {
		matType = gocv.MatTypeCV8UC1
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, matType, f.Data)
	if err != nil {
		return fmt.Errorf("video: frame %d to mat: %w", f.Index, err)
	}
	defer mat.Close()

	if err := e.writer.Write(mat); err != nil {
		return fmt.Errorf("video: write frame %d to %q: %w", f.Index, e.path, err)
	}
	return nil
}

func (e *openCVEncoder) Release() error {
	if e.released {
		return nil
	}
	e.released = true
	return e.writer.Close()
}
