package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/thinkhire/interview-pipeline/features"
	"github.com/thinkhire/interview-pipeline/scoring"
)

type State int

const (
	NotStarted State = iota
	CountdownRunning
	Answering
	Submitting
	Reviewing
	Complete
)

var stateNames = [...]string{
	NotStarted:       "not_started",
	CountdownRunning: "countdown",
	Answering:        "answering",
	Submitting:       "submitting",
	Reviewing:        "reviewing",
	Complete:         "complete",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	// ErrExited is returned by an operation that was overtaken by Exit.
	ErrExited = errors.New("interview exited")
)

// TransitionError rejects an operation that is not valid in the current state.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

type EventKind string

const (
	EventState      EventKind = "state"
	EventCountdown  EventKind = "countdown"
	EventQuestion   EventKind = "question"
	EventTranscript EventKind = "transcript"
	EventWindow     EventKind = "window"
	EventScore      EventKind = "score"
	EventListening  EventKind = "listening"
	EventError      EventKind = "error"
)

// Event is what observers see of an interview. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind      EventKind                 `json:"kind"`
	Session   string                    `json:"session"`
	At        time.Time                 `json:"at"`
	State     State                     `json:"state"`
	Countdown int                       `json:"countdown,omitempty"`
	Question  string                    `json:"question,omitempty"`
	Index     int                       `json:"index,omitempty"`
	Text      string                    `json:"text,omitempty"`
	Window    *features.Window          `json:"window,omitempty"`
	Metrics   *features.Metrics         `json:"metrics,omitempty"`
	Score     *scoring.PerformanceScore `json:"score,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// Report summarises an interview run.
type Report struct {
	SessionID  string                     `yaml:"session_id" json:"session_id"`
	Domain     string                     `yaml:"domain" json:"domain"`
	Questions  int                        `yaml:"questions" json:"questions"`
	Average    int                        `yaml:"average" json:"average"`
	Dimensions map[string]int             `yaml:"dimensions" json:"dimensions"`
	Weaknesses []string                   `yaml:"top_weaknesses" json:"top_weaknesses"`
	Scores     []scoring.PerformanceScore `yaml:"scores" json:"scores"`
}
