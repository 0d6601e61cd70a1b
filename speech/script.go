package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Cue is one scripted engine callback.
type Cue struct {
	AfterMs int    `json:"after_ms"`
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Error   string `json:"error,omitempty"`
	// End simulates the engine terminating on its own.
	End bool `json:"end,omitempty"`
}

func (c Cue) event() Event {
	switch {
	case c.End:
		return Event{Kind: EventEnd}
	case c.Error != "":
		return Event{Kind: EventError, Code: c.Error}
	default:
		return Event{Kind: EventResult, Fragments: []Fragment{{Text: c.Text, Final: c.Final}}}
	}
}

// ScriptEngine replays cues with their delays. A restart after an End cue
// resumes at the next cue. Once the script runs out the engine stays open
// until stopped.
type ScriptEngine struct {
	mu     sync.Mutex
	cues   []Cue
	pos    int
	cancel context.CancelFunc
	starts int
}

func NewScriptEngine(cues []Cue) *ScriptEngine {
	return &ScriptEngine{cues: cues}
}

// LoadScript reads cues from a JSON lines file.
func LoadScript(path string) (*ScriptEngine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cues, err := ReadCues(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewScriptEngine(cues), nil
}

func ReadCues(r io.Reader) ([]Cue, error) {
	var cues []Cue
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var c Cue
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cues = append(cues, c)
	}
	return cues, sc.Err()
}

func (e *ScriptEngine) Start(ctx context.Context, emit func(Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("script engine already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.starts++
	go e.run(ctx, emit)
	return nil
}

func (e *ScriptEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Starts counts Start calls, restarts included.
func (e *ScriptEngine) Starts() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.starts
}

// Rewind moves back to the first cue.
func (e *ScriptEngine) Rewind() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = 0
}

func (e *ScriptEngine) peek() (Cue, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pos >= len(e.cues) {
		return Cue{}, false
	}
	return e.cues[e.pos], true
}

func (e *ScriptEngine) advance() {
	e.mu.Lock()
	e.pos++
	e.mu.Unlock()
}

func (e *ScriptEngine) run(ctx context.Context, emit func(Event)) {
	for {
		cue, ok := e.peek()
		if !ok {
			<-ctx.Done()
			return
		}
		if !wait(ctx, time.Duration(cue.AfterMs)*time.Millisecond) {
			return
		}
		e.advance()
		if cue.End {
			e.mu.Lock()
			// a live ctx means e.cancel still belongs to this run
			if ctx.Err() == nil && e.cancel != nil {
				e.cancel()
				e.cancel = nil
			}
			e.mu.Unlock()
			emit(cue.event())
			return
		}
		emit(cue.event())
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
