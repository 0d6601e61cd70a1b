package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/thinkhire/interview-pipeline/features"
)

// ReplayDevices plays back a recording of per-frame signals, one JSON object
// per line, in place of a camera. The recording loops.
type ReplayDevices struct {
	Path string
	// MinWidth simulates a camera that cannot satisfy larger ideal widths.
	MinWidth int
}

func (d *ReplayDevices) GetUserMedia(_ context.Context, c Constraints) (Stream, error) {
	if c.Video == nil {
		return nil, &DeviceError{Kind: NoDevice, Err: errors.New("replay device only provides video")}
	}
	if d.MinWidth > 0 && c.Video.IdealWidth > d.MinWidth {
		return nil, &DeviceError{Kind: Overconstrained, Err: fmt.Errorf("ideal width %d above %d", c.Video.IdealWidth, d.MinWidth)}
	}

	frames, raw, err := readFrames(d.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &DeviceError{Kind: NoDevice, Err: err}
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, &DeviceError{Kind: PermissionDenied, Err: err}
		}
		return nil, err
	}

	s := &replayStream{frames: frames, raw: raw}
	s.tracks = []Track{&replayTrack{kind: "video", stream: s}}
	if c.Audio {
		s.tracks = append(s.tracks, &replayTrack{kind: "audio", stream: s})
	}
	return s, nil
}

// readFrames returns the decoded frames and their source lines.
func readFrames(path string) ([]features.Signals, [][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var (
		out []features.Signals
		raw [][]byte
	)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var s features.Signals
		if err := json.Unmarshal(sc.Bytes(), &s); err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, s)
		raw = append(raw, append(append([]byte(nil), sc.Bytes()...), '\n'))
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(out) == 0 {
		return nil, nil, fmt.Errorf("%s: no frames", path)
	}
	return out, raw, nil
}

type replayStream struct {
	mu     sync.Mutex
	frames []features.Signals
	raw    [][]byte
	pos    int
	ended  bool
	tracks []Track
	// recorded is the frame lines served since the last Recording call.
	recorded bytes.Buffer
}

func (s *replayStream) Tracks() []Track { return s.tracks }

func (s *replayStream) Frames() features.FrameSource { return s }

func (s *replayStream) Frame(ctx context.Context) (features.Signals, error) {
	if err := ctx.Err(); err != nil {
		return features.Signals{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return features.Signals{}, errors.New("video track ended")
	}
	i := s.pos % len(s.frames)
	s.pos++
	s.recorded.Write(s.raw[i])
	return s.frames[i], nil
}

// Recording returns the frame lines served since the previous call, in the
// recording's own format.
func (s *replayStream) Recording() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorded.Len() == 0 {
		return nil
	}
	out := bytes.Clone(s.recorded.Bytes())
	s.recorded.Reset()
	return out
}

type replayTrack struct {
	kind   string
	stream *replayStream
}

func (t *replayTrack) Kind() string { return t.kind }

func (t *replayTrack) Stop() {
	if t.kind != "video" {
		return
	}
	t.stream.mu.Lock()
	t.stream.ended = true
	t.stream.mu.Unlock()
}

// NopSink discards the stream; used when there is nothing to render to.
type NopSink struct{}

func (NopSink) Bind(Stream)                {}
func (NopSink) Play(context.Context) error { return nil }
func (NopSink) Unbind()                    {}
