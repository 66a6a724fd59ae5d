// Package liveness gates attendance capture on a stable face-presence signal
// computed from a live camera frame stream.
package liveness

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Frame is one camera frame with its metadata. Release must be called exactly
// once after (or on failure of) processing, or the camera source stalls.
type Frame struct {
	Width    int
	Height   int
	Rotation int // degrees
	Data     []byte

	release func()
}

// NewFrame builds a frame whose Release invokes the source's reclaim hook.
func NewFrame(width, height, rotation int, data []byte, release func()) Frame {
	return Frame{Width: width, Height: height, Rotation: rotation, Data: data, release: release}
}

// Release returns the frame's buffer to the camera source.
func (f *Frame) Release() {
	if f.release != nil {
		f.release()
		f.release = nil
	}
}

// Box is a face bounding box in frame pixel coordinates.
type Box struct {
	Left, Top, Right, Bottom int
}

// Width returns the box width in pixels.
func (b Box) Width() int { return b.Right - b.Left }

// Height returns the box height in pixels.
func (b Box) Height() int { return b.Bottom - b.Top }

// Area returns the box area, used to pick the dominant face.
func (b Box) Area() int { return b.Width() * b.Height() }

// FaceFinder runs face detection on a single frame.
type FaceFinder interface {
	// Detect returns the face bounding boxes found in the frame.
	Detect(f Frame) ([]Box, error)
}

// Config tunes the per-frame geometry check and the temporal smoothing.
type Config struct {
	MinWidthRatio  float64 // face width / frame width lower bound
	MinHeightRatio float64 // face height / frame height lower bound
	EdgeMargin     float64 // box must stay this fraction away from each edge
	StableFrames   int     // consecutive detections before the signal arms
	LostTolerance  int     // consecutive losses before the signal disarms
}

// DefaultConfig mirrors the capture screen's tuning: faces covering ~9% of
// each dimension, a 4% edge margin, 2 frames to arm and 3 to disarm.
func DefaultConfig() Config {
	return Config{
		MinWidthRatio:  0.09,
		MinHeightRatio: 0.09,
		EdgeMargin:     0.04,
		StableFrames:   2,
		LostTolerance:  3,
	}
}

// Detector consumes frames with replace-with-latest backpressure and
// maintains the public ready-to-capture signal with hysteresis.
type Detector struct {
	cfg    Config
	finder FaceFinder
	log    *zap.Logger

	mu     sync.Mutex
	latest *Frame
	notify chan struct{}

	detected int
	lost     int

	ready    atomic.Bool
	inFlight atomic.Bool
}

// NewDetector constructs a detector around the given face finder.
func NewDetector(finder FaceFinder, cfg Config, log *zap.Logger) *Detector {
	if cfg.StableFrames <= 0 {
		cfg.StableFrames = 1
	}
	if cfg.LostTolerance <= 0 {
		cfg.LostTolerance = 1
	}
	return &Detector{
		cfg:    cfg,
		finder: finder,
		log:    log,
		notify: make(chan struct{}, 1),
	}
}

// Offer hands the detector a new frame. A frame still waiting for analysis
// is released and replaced; stale frames are never queued.
func (d *Detector) Offer(f Frame) {
	d.mu.Lock()
	displaced := d.latest
	d.latest = &f
	d.mu.Unlock()

	if displaced != nil {
		displaced.Release()
	}
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Run analyzes frames until ctx is done. Pending frames are released on exit.
func (d *Detector) Run(ctx context.Context) error {
	defer d.drain()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.notify:
		}
		frame := d.take()
		if frame == nil {
			continue
		}
		d.analyze(*frame)
	}
}

// CheckFrame runs the finder and the geometry check on a single frame
// without touching the smoothed signal. One-shot captures use it when no
// continuous frame stream exists. The frame is released before returning.
func (d *Detector) CheckFrame(f Frame) (bool, error) {
	defer f.Release()
	boxes, err := d.finder.Detect(f)
	if err != nil {
		return false, err
	}
	return d.frameValid(f, boxes), nil
}

// Ready reports the current smoothed face-presence signal.
func (d *Detector) Ready() bool { return d.ready.Load() }

/// CaptureAllowed reports whether the capture action should be enabled:
// signal armed and no submission already in flight.
func (d *Detector) CaptureAllowed() bool { return d.ready.Load() && !d.inFlight.Load() }

// SetInFlight flags that a submission is running, disabling further captures.
func (d *Detector) SetInFlight(v bool) { d.inFlight.Store(v) }

func (d *Detector) take() *Frame {
	d.mu.Lock()
	f := d.latest
	d.latest = nil
	d.mu.Unlock()
	return f
}

func (d *Detector) drain() {
	if f := d.take(); f != nil {
		f.Release()
	}
}

// analyze runs one frame through the finder and feeds the smoothing state.
// Finder failures count as a lost frame; they must never stop the loop.
func (d *Detector) analyze(f Frame) {
	defer f.Release()

	boxes, err := d.finder.Detect(f)
	if err != nil {
		d.log.Debug("face detection failed", zap.Error(err))
		d.observe(false)
		return
	}
	d.observe(d.frameValid(f, boxes))
}

// frameValid applies the geometry check: the dominant face must be large
// enough relative to the frame and fully inside it with a margin.
func (d *Detector) frameValid(f Frame, boxes []Box) bool {
	if len(boxes) == 0 || f.Width <= 0 || f.Height <= 0 {
		return false
	}
	box := boxes[0]
	for _, b := range boxes[1:] {
		if b.Area() > box.Area() {
			box = b
		}
	}

	fw, fh := float64(f.Width), float64(f.Height)
	widthOK := float64(box.Width())/fw >= d.cfg.MinWidthRatio
	heightOK := float64(box.Height())/fh >= d.cfg.MinHeightRatio

	marginX := fw * d.cfg.EdgeMargin
	marginY := fh * d.cfg.EdgeMargin
	insideX := float64(box.Left) >= marginX && float64(box.Right) <= fw-marginX
	insideY := float64(box.Top) >= marginY && float64(box.Bottom) <= fh-marginY

	return widthOK && heightOK && insideX && insideY
}

// observe advances the hysteresis counters and flips the public signal at
// the configured thresholds. One noisy frame never toggles the signal.
func (d *Detector) observe(detectedNow bool) {
	if detectedNow {
		d.detected++
		d.lost = 0
		if d.detected >= d.cfg.StableFrames {
			d.ready.Store(true)
		}
		return
	}
	d.detected = 0
	d.lost++
	if d.lost >= d.cfg.LostTolerance {
		d.ready.Store(false)
	}
}
