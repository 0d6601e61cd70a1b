package features

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultWindowLength = 3000 * time.Millisecond
	DefaultStep         = 1000 * time.Millisecond
	DefaultFPS          = 15
)

// Signal names as they appear on the wire.
const (
	SignalHeadDisp  = "head_disp"
	SignalBBoxWidth = "bbox_width"
	SignalIrisX     = "avg_iris_x"
	SignalBlinkRate = "blink_rate"
)

var ErrEmptyWindow = errors.New("window end must be after start")

// Signals is what a frame source reports for a single video frame. Values are
// normalized to the frame (0..1).
type Signals struct {
	HeadX     float64 `json:"head_x"`
	HeadY     float64 `json:"head_y"`
	BBoxWidth float64 `json:"bbox_width"`
	IrisX     float64 `json:"iris_x"`
	Blink     bool    `json:"blink"`
}

// Features holds the per-frame series of a window plus the blink rate over it.
type Features struct {
	HeadDisp  []float64 `json:"head_disp"`
	BBoxWidth []float64 `json:"bbox_width"`
	AvgIrisX  []float64 `json:"avg_iris_x"`
	BlinkRate float64   `json:"blink_rate"`
}

// Window is an immutable aggregation of frame signals between WindowStart and
// WindowEnd, both unix milliseconds.
type Window struct {
	WindowStart int64    `json:"window_start"`
	WindowEnd   int64    `json:"window_end"`
	FPS         int      `json:"fps"`
	Features    Features `json:"features"`
}

func (w Window) Validate() error {
	if w.WindowEnd <= w.WindowStart {
		return fmt.Errorf("window [%d, %d]: %w", w.WindowStart, w.WindowEnd, ErrEmptyWindow)
	}
	return nil
}

func (w Window) Duration() time.Duration {
	return time.Duration(w.WindowEnd-w.WindowStart) * time.Millisecond
}

// Series returns the sequences keyed by signal name. The slices are copies.
func (w Window) Series() map[string][]float64 {
	return map[string][]float64{
		SignalHeadDisp:  append([]float64(nil), w.Features.HeadDisp...),
		SignalBBoxWidth: append([]float64(nil), w.Features.BBoxWidth...),
		SignalIrisX:     append([]float64(nil), w.Features.AvgIrisX...),
	}
}

type sample struct {
	at       int64
	headDisp float64
	bbox     float64
	iris     float64
	blinkOn  bool // first frame of a blink
}

// Windower turns timestamped frame signals into sliding windows. The first
// window closes windowLength after the first sample; after that one window
// closes every step. Window k spans [t0+k*step, t0+length+k*step).
type Windower struct {
	length int64
	step   int64
	fps    int

	started  bool
	next     int64
	samples  []sample
	lastHead *[2]float64
	blinking bool
}

func NewWindower(length, step time.Duration, fps int) (*Windower, error) {
	if length == 0 {
		length = DefaultWindowLength
	}
	if step == 0 {
		step = DefaultStep
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	if step < time.Millisecond || length < time.Millisecond {
		return nil, fmt.Errorf("window length %s and step %s must be at least 1ms", length, step)
	}
	if step > length {
		return nil, fmt.Errorf("step %s exceeds window length %s", step, length)
	}
	return &Windower{
		length: length.Milliseconds(),
		step:   step.Milliseconds(),
		fps:    fps,
	}, nil
}

// Add records one frame taken at unix millisecond at and returns every window
// that closed at or before it. Samples must arrive in time order.
func (w *Windower) Add(at int64, sig Signals) []Window {
	if !w.started {
		w.started = true
		w.next = at + w.length
	}

	s := sample{at: at, bbox: sig.BBoxWidth, iris: sig.IrisX}
	if w.lastHead != nil {
		s.headDisp = math.Hypot(sig.HeadX-w.lastHead[0], sig.HeadY-w.lastHead[1])
	}
	w.lastHead = &[2]float64{sig.HeadX, sig.HeadY}
	s.blinkOn = sig.Blink && !w.blinking
	w.blinking = sig.Blink

	var out []Window
	for at >= w.next {
		out = append(out, w.build(w.next-w.length, w.next))
		w.next += w.step
	}
	w.samples = append(w.samples, s)
	w.prune()
	return out
}

// Reset drops buffered samples so the next Add starts a fresh series.
func (w *Windower) Reset() {
	w.started = false
	w.next = 0
	w.samples = nil
	w.lastHead = nil
	w.blinking = false
}

func (w *Windower) build(start, end int64) Window {
	win := Window{WindowStart: start, WindowEnd: end, FPS: w.fps}
	blinks := 0
	for _, s := range w.samples {
		if s.at < start || s.at >= end {
			continue
		}
		win.Features.HeadDisp = append(win.Features.HeadDisp, s.headDisp)
		win.Features.BBoxWidth = append(win.Features.BBoxWidth, s.bbox)
		win.Features.AvgIrisX = append(win.Features.AvgIrisX, s.iris)
		if s.blinkOn {
			blinks++
		}
	}
	if secs := float64(end-start) / 1000; secs > 0 {
		win.Features.BlinkRate = float64(blinks) / secs
	}
	return win
}

// prune keeps only the samples the next window can still see.
func (w *Windower) prune() {
	floor := w.next - w.length
	i := 0
	for i < len(w.samples) && w.samples[i].at < floor {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}
