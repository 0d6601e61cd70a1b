package speech

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/thinkhire/interview-pipeline/clients"
)

// Uploader is the part of the analysis client the ASR engine needs.
type Uploader interface {
	ASR(ctx context.Context, audioPath string) (*clients.ASRResp, error)
}

// ASREngine transcribes recorded answers through the ASR service. Each Start
// takes the next file from Files; segments are delivered as final fragments,
// paced by their timestamps when Pace is set.
type ASREngine struct {
	Client Uploader
	Files  []string
	Pace   bool

	mu     sync.Mutex
	next   int
	cancel context.CancelFunc
}

func (e *ASREngine) Start(ctx context.Context, emit func(Event)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return errors.New("asr engine already started")
	}
	if len(e.Files) == 0 {
		return &RecognitionError{Code: CodeAudioCapture, Severity: Fatal}
	}
	path := e.Files[e.next%len(e.Files)]
	e.next++

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(ctx, path, emit)
	return nil
}

func (e *ASREngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *ASREngine) run(ctx context.Context, path string, emit func(Event)) {
	resp, err := e.Client.ASR(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		emit(Event{Kind: EventError, Code: asrCode(err)})
		<-ctx.Done()
		return
	}

	var last float64
	for _, seg := range resp.Segments {
		if e.Pace {
			if !wait(ctx, time.Duration((seg.End-last)*float64(time.Second))) {
				return
			}
			last = seg.End
		}
		if ctx.Err() != nil {
			return
		}
		emit(Event{Kind: EventResult, Fragments: []Fragment{{Text: seg.Text, Final: true}}})
	}
	<-ctx.Done()
}

func asrCode(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeNetwork
	}
	var se *clients.StatusError
	if errors.As(err, &se) && (se.Code == 401 || se.Code == 403) {
		return CodeServiceNotAllowed
	}
	return CodeNetwork
}
