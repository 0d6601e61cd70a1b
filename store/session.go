package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/thinkhire/interview-pipeline/scoring"
)

// Keys used by the reporting views.
const (
	KeyUser          = "user"
	KeyAuthToken     = "authToken"
	KeySessionScores = "sessionScores"
	performanceKey   = "performanceScores:"
)

// SessionScore is one entry of the score history.
type SessionScore struct {
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
	Question  string    `json:"question,omitempty"`
}

// User is the profile the auth service hands back on login. Only the fields
// the pipeline reads are typed; the raw object is stored as given.
type User struct {
	ID    string `mapstructure:"id"`
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// Session is the typed view over a KV used by the orchestrator and the
// practice flows.
type Session struct {
	kv KV
}

func NewSession(kv KV) *Session { return &Session{kv: kv} }

func (s *Session) get(key string, v any) (bool, error) {
	data, ok, err := s.kv.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Session) set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.kv.Set(key, data)
}

// SaveUser stores the raw profile object returned by the auth service.
func (s *Session) SaveUser(raw map[string]any) error { return s.set(KeyUser, raw) }

// GetUser decodes the stored profile. Numeric ids are accepted as strings.
func (s *Session) GetUser() (*User, bool, error) {
	var raw map[string]any
	ok, err := s.get(KeyUser, &raw)
	if err != nil || !ok {
		return nil, false, err
	}
	var u User
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &u,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, false, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", KeyUser, err)
	}
	return &u, true, nil
}

func (s *Session) SaveAuthToken(token string) error { return s.set(KeyAuthToken, token) }

func (s *Session) AuthToken() (string, error) {
	var tok string
	_, err := s.get(KeyAuthToken, &tok)
	return tok, err
}

// SaveSessionScores replaces the score history.
func (s *Session) SaveSessionScores(scores []SessionScore) error {
	if scores == nil {
		scores = []SessionScore{}
	}
	return s.set(KeySessionScores, scores)
}

// GetSessionScores returns the score history, empty if none was saved.
func (s *Session) GetSessionScores() ([]SessionScore, error) {
	scores := []SessionScore{}
	if _, err := s.get(KeySessionScores, &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

func (s *Session) AppendSessionScore(score SessionScore) error {
	scores, err := s.GetSessionScores()
	if err != nil {
		return err
	}
	return s.SaveSessionScores(append(scores, score))
}

func (s *Session) ClearSessionScores() error { return s.kv.Delete(KeySessionScores) }

// SavePerformance replaces the per-question records of one interview run.
func (s *Session) SavePerformance(sessionID string, ps []scoring.PerformanceScore) error {
	return s.set(performanceKey+sessionID, ps)
}

func (s *Session) Performance(sessionID string) ([]scoring.PerformanceScore, error) {
	var ps []scoring.PerformanceScore
	if _, err := s.get(performanceKey+sessionID, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// Sessions lists the interview runs with stored performance records. It is
// empty for stores that cannot enumerate their keys.
func (s *Session) Sessions() []string {
	lister, ok := s.kv.(interface{ Keys() []string })
	if !ok {
		return nil
	}
	var ids []string
	for _, k := range lister.Keys() {
		if id, ok := strings.CutPrefix(k, performanceKey); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Logout forgets the user, the token and the score history.
func (s *Session) Logout() error {
	for _, k := range []string{KeyUser, KeyAuthToken, KeySessionScores} {
		if err := s.kv.Delete(k); err != nil {
			return err
		}
	}
	return nil
}
