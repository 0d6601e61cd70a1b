package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thinkhire/interview-pipeline/features"
)

type fakeTrack struct {
	kind  string
	stops int
}

func (t *fakeTrack) Kind() string { return t.kind }
func (t *fakeTrack) Stop()        { t.stops++ }

type fakeStream struct{ tracks []*fakeTrack }

func (s *fakeStream) Tracks() []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *fakeStream) Frames() features.FrameSource { return nil }

type fakeDevices struct {
	errs   []error
	calls  []Constraints
	stream *fakeStream
}

func (d *fakeDevices) GetUserMedia(_ context.Context, c Constraints) (Stream, error) {
	d.calls = append(d.calls, c)
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return d.stream, nil
}

type fakeSink struct {
	bound    bool
	playErr  error
	unbinds  int
	bindings int
}

func (s *fakeSink) Bind(Stream)                { s.bound = true; s.bindings++ }
func (s *fakeSink) Play(context.Context) error { return s.playErr }
func (s *fakeSink) Unbind()                    { s.bound = false; s.unbinds++ }

func newStream() *fakeStream {
	return &fakeStream{tracks: []*fakeTrack{{kind: "video"}, {kind: "audio"}}}
}

func TestAcquireRetriesRelaxedOnce(t *testing.T) {
	devices := &fakeDevices{errs: []error{ErrOverconstrained}, stream: newStream()}
	sink := &fakeSink{}
	a := NewAcquirer(devices, sink, nil)

	sess, err := a.Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(devices.calls) != 2 {
		t.Fatalf("GetUserMedia called %d times, want 2", len(devices.calls))
	}
	if v := devices.calls[1].Video; v == nil || v.IdealWidth != 0 {
		t.Fatalf("retry constraints = %+v, want relaxed video", devices.calls[1])
	}
	if !sink.bound || sess.Stream() == nil {
		t.Fatal("stream not bound to sink")
	}
}

func TestAcquireOverconstrainedTwiceFails(t *testing.T) {
	devices := &fakeDevices{errs: []error{ErrOverconstrained, ErrOverconstrained}, stream: newStream()}
	sink := &fakeSink{}
	_, err := NewAcquirer(devices, sink, nil).Acquire(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrOverconstrained) {
		t.Fatalf("err = %v, want overconstrained", err)
	}
	if len(devices.calls) != 2 {
		t.Fatalf("GetUserMedia called %d times, want 2", len(devices.calls))
	}
	if sink.bindings != 0 {
		t.Fatal("sink bound after failure")
	}
}

func TestAcquireClassifiesErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "denied", err: &DeviceError{Kind: PermissionDenied, Err: errors.New("NotAllowedError")}, want: ErrPermissionDenied},
		{name: "missing", err: ErrNoDevice, want: ErrNoDevice},
		{name: "unknown", err: errors.New("boom"), want: ErrNoDevice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devices := &fakeDevices{errs: []error{tt.err}, stream: newStream()}
			_, err := NewAcquirer(devices, nil, nil).Acquire(context.Background(), DefaultConstraints())
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if len(devices.calls) != 1 {
				t.Fatalf("no retry expected, got %d calls", len(devices.calls))
			}
		})
	}
}

func TestAcquirePlayFailureReleases(t *testing.T) {
	stream := newStream()
	sink := &fakeSink{playErr: errors.New("autoplay blocked")}
	_, err := NewAcquirer(&fakeDevices{stream: stream}, sink, nil).Acquire(context.Background(), DefaultConstraints())
	if err == nil {
		t.Fatal("expected play error")
	}
	if sink.bound {
		t.Fatal("sink still bound after play failure")
	}
	for _, tr := range stream.tracks {
		if tr.stops != 1 {
			t.Fatalf("%s track stopped %d times, want 1", tr.kind, tr.stops)
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	stream := newStream()
	sess, err := NewAcquirer(&fakeDevices{stream: stream}, &fakeSink{}, nil).Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatal(err)
	}
	sess.Release()
	sess.Release()
	sess.Release()
	for _, tr := range stream.tracks {
		if tr.stops != 1 {
			t.Fatalf("%s track stopped %d times, want 1", tr.kind, tr.stops)
		}
	}
}

func TestReplayDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	data := `{"head_x":0.5,"head_y":0.5,"bbox_width":0.3,"iris_x":0.5}
{"head_x":0.51,"head_y":0.5,"bbox_width":0.31,"iris_x":0.48,"blink":true}
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	devices := &ReplayDevices{Path: path, MinWidth: 640}
	sess, err := NewAcquirer(devices, NopSink{}, nil).Acquire(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	src := sess.Frames()
	for i := 0; i < 3; i++ {
		if _, err := src.Frame(context.Background()); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	sess.Release()
	if _, err := src.Frame(context.Background()); err == nil {
		t.Fatal("frame after release should fail")
	}

	_, err = NewAcquirer(&ReplayDevices{Path: filepath.Join(t.TempDir(), "missing")}, nil, nil).
		Acquire(context.Background(), DefaultConstraints())
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("missing recording err = %v, want no device", err)
	}
}

func TestReplayRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	lines := []string{
		`{"head_x":0.5,"head_y":0.5,"bbox_width":0.3,"iris_x":0.5}`,
		`{"head_x":0.6,"head_y":0.5,"bbox_width":0.3,"iris_x":0.4}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stream, err := (&ReplayDevices{Path: path}).GetUserMedia(context.Background(), DefaultConstraints())
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := stream.(Recorder)
	if !ok {
		t.Fatal("replay stream does not record")
	}
	if got := rec.Recording(); got != nil {
		t.Fatalf("recording before any frame = %q", got)
	}

	for i := 0; i < 3; i++ {
		if _, err := stream.Frames().Frame(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	want := lines[0] + "\n" + lines[1] + "\n" + lines[0] + "\n"
	if got := string(rec.Recording()); got != want {
		t.Fatalf("recording = %q, want %q", got, want)
	}
	if got := rec.Recording(); got != nil {
		t.Fatalf("second recording = %q, want empty", got)
	}
}
