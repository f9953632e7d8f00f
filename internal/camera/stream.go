package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Fallback snapshot resolution when the source reports zero dimensions.
const (
	defaultSnapshotWidth  = 640
	defaultSnapshotHeight = 480
)

// ErrFrameBlocked indicates the source refused pixel access for an
// otherwise-open stream. The remedy is switching devices, not retrying, so it
// stays distinct from transient read failures.
var ErrFrameBlocked = errors.New("frame capture blocked: source refused pixel access")

// ErrStreamReleased indicates use of a stream handle after Release.
var ErrStreamReleased = errors.New("stream released")

// Stream is a live capture stream exclusively owned by the session. Grab
// returns the next frame as an encoded JPEG segment; Snapshot rasterizes the
// current frame as a still image.
type Stream interface {
	DeviceID() string
	Grab(ctx context.Context) ([]byte, error)
	Snapshot() ([]byte, error)
	Release() error
}

// videoStream wraps one platform capture handle.
type videoStream struct {
	id string

	mu       sync.Mutex
	cap      *gocv.VideoCapture
	mat      gocv.Mat
	released bool
}

// OpenDevice is the production Opener. It constrains the open to exactly the
// requested device id and retains nothing on failure.
func OpenDevice(_ context.Context, deviceID string) (Stream, error) {
	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open device %s: %w", deviceID, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, fmt.Errorf("device %s did not open", deviceID)
	}
	return &videoStream{id: deviceID, cap: capture, mat: gocv.NewMat()}, nil
}

func (v *videoStream) DeviceID() string {
	return v.id
}

// Grab reads and encodes the next frame.
func (v *videoStream) Grab(ctx context.Context) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.released {
		return nil, ErrStreamReleased
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ok := v.cap.Read(&v.mat); !ok {
		return nil, fmt.Errorf("read frame from %s failed", v.id)
	}
	if v.mat.Empty() {
		return nil, fmt.Errorf("empty frame from %s", v.id)
	}
	return encodeJPEG(v.mat)
}

// Snapshot rasterizes the current frame at the stream's native resolution,
// falling back to a default when the source reports zero.
func (v *videoStream) Snapshot() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.released {
		return nil, ErrStreamReleased
	}
	if ok := v.cap.Read(&v.mat); !ok {
		if v.cap.IsOpened() {
			return nil, ErrFrameBlocked
		}
		return nil, fmt.Errorf("snapshot from %s: stream not open", v.id)
	}
	if v.mat.Empty() {
		return nil, ErrFrameBlocked
	}

	width := int(v.cap.Get(gocv.VideoCaptureFrameWidth))
	height := int(v.cap.Get(gocv.VideoCaptureFrameHeight))
	if width <= 0 || height <= 0 {
		width, height = defaultSnapshotWidth, defaultSnapshotHeight
	}

	if v.mat.Cols() == width && v.mat.Rows() == height {
		return encodeJPEG(v.mat)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(v.mat, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return encodeJPEG(resized)
}

// Release closes the capture handle and frame buffer exactly once.
func (v *videoStream) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.released {
		return nil
	}
	v.released = true

	err := v.cap.Close()
	_ = v.mat.Close()
	if err != nil {
		return fmt.Errorf("release device %s: %w", v.id, err)
	}
	return nil
}

func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
