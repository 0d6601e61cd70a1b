// Package media acquires camera and microphone streams and owns their
// lifecycle for the duration of an interview session.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/features"
)

type ErrorKind string

const (
	PermissionDenied ErrorKind = "PermissionDenied"
	NoDevice         ErrorKind = "NoDevice"
	Overconstrained  ErrorKind = "Overconstrained"
)

var (
	ErrPermissionDenied = &DeviceError{Kind: PermissionDenied}
	ErrNoDevice         = &DeviceError{Kind: NoDevice}
	ErrOverconstrained  = &DeviceError{Kind: Overconstrained}
)

// DeviceError is fatal to a session; the user has to fix permissions or
// hardware and retry.
type DeviceError struct {
	Kind ErrorKind
	Err  error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("media device %s: %v", e.Kind, e.Err)
	}
	return "media device " + string(e.Kind)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is matches any DeviceError of the same kind.
func (e *DeviceError) Is(target error) bool {
	var d *DeviceError
	if errors.As(target, &d) {
		return d.Kind == e.Kind
	}
	return false
}

// Message is the text shown to the user for the error kind.
func (e *DeviceError) Message() string {
	switch e.Kind {
	case PermissionDenied:
		return "Camera and microphone access denied. Please enable permissions and try again."
	case NoDevice:
		return "No camera or microphone found. Please connect devices and try again."
	default:
		return "Could not access webcam. Please check permissions and try again."
	}
}

type VideoConstraints struct {
	IdealWidth  int
	IdealHeight int
}

type Constraints struct {
	Video *VideoConstraints
	Audio bool
}

// DefaultConstraints asks for 720p video and audio.
func DefaultConstraints() Constraints {
	return Constraints{
		Video: &VideoConstraints{IdealWidth: 1280, IdealHeight: 720},
		Audio: true,
	}
}

// Relaxed drops the resolution hints and keeps the requested kinds.
func (c Constraints) Relaxed() Constraints {
	out := Constraints{Audio: c.Audio}
	if c.Video != nil {
		out.Video = &VideoConstraints{}
	}
	return out
}

type Track interface {
	Kind() string
	Stop()
}

// Stream is a live set of tracks. Frames exposes the video track to the
// feature sampler.
type Stream interface {
	Tracks() []Track
	Frames() features.FrameSource
}

// Recorder is implemented by streams that record what they capture.
// Recording returns the bytes captured since the last call.
type Recorder interface {
	Recording() []byte
}

// Devices is the platform's getUserMedia.
type Devices interface {
	GetUserMedia(ctx context.Context, c Constraints) (Stream, error)
}

// Sink is where a stream is shown to the user.
type Sink interface {
	Bind(s Stream)
	Play(ctx context.Context) error
	Unbind()
}

// Session owns a live stream. Release stops every track exactly once.
type Session struct {
	stream Stream
	sink   Sink
	once   sync.Once
	log    logrus.FieldLogger
}

func (s *Session) Stream() Stream { return s.stream }

func (s *Session) Frames() features.FrameSource { return s.stream.Frames() }

// Release stops all tracks and unbinds the sink. Safe to call repeatedly.
func (s *Session) Release() {
	s.once.Do(func() {
		if s.sink != nil {
			s.sink.Unbind()
		}
		for _, t := range s.stream.Tracks() {
			t.Stop()
		}
		s.log.Debug("media released")
	})
}

type Acquirer struct {
	devices Devices
	sink    Sink
	log     logrus.FieldLogger
}

func NewAcquirer(devices Devices, sink Sink, log logrus.FieldLogger) *Acquirer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Acquirer{devices: devices, sink: sink, log: log.WithField("component", "media")}
}

// Acquire requests the devices, retrying once with relaxed constraints when
// the first request is overconstrained, then binds and plays the stream.
func (a *Acquirer) Acquire(ctx context.Context, c Constraints) (*Session, error) {
	stream, err := a.devices.GetUserMedia(ctx, c)
	if err != nil && errors.Is(err, ErrOverconstrained) {
		a.log.WithError(err).Info("constraints rejected, retrying relaxed")
		stream, err = a.devices.GetUserMedia(ctx, c.Relaxed())
	}
	if err != nil {
		return nil, classify(err)
	}

	sess := &Session{stream: stream, sink: a.sink, log: a.log}
	if a.sink != nil {
		a.sink.Bind(stream)
		if err := a.sink.Play(ctx); err != nil {
			sess.Release()
			return nil, fmt.Errorf("play stream: %w", err)
		}
	}

	a.log.WithField("tracks", len(stream.Tracks())).Info("media acquired")
	return sess, nil
}

func classify(err error) error {
	var d *DeviceError
	if errors.As(err, &d) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &DeviceError{Kind: NoDevice, Err: err}
}
