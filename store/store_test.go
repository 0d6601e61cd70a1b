package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/thinkhire/interview-pipeline/scoring"
)

func stores(t *testing.T) map[string]KV {
	t.Helper()
	f, err := OpenFile(filepath.Join(t.TempDir(), "nested", "store.json"))
	if err != nil {
		t.Fatal(err)
	}
	return map[string]KV{"memory": NewMemory(), "file": f}
}

func TestSessionScoresRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	inputs := [][]SessionScore{
		{},
		{{Score: 71, Timestamp: at}},
		{{Score: 0, Timestamp: at, Question: "Why Go?"}, {Score: 100, Timestamp: at.Add(time.Minute)}},
	}
	for name, kv := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := NewSession(kv)
			for _, x := range inputs {
				if err := s.SaveSessionScores(x); err != nil {
					t.Fatal(err)
				}
				got, err := s.GetSessionScores()
				if err != nil {
					t.Fatal(err)
				}
				if diff := cmp.Diff(x, got); diff != "" {
					t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestSessionRepository(t *testing.T) {
	for name, kv := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := NewSession(kv)

			if scores, err := s.GetSessionScores(); err != nil || len(scores) != 0 {
				t.Fatalf("fresh store scores = %v, %v", scores, err)
			}
			if err := s.SaveUser(map[string]any{"id": 42, "name": "Sam", "plan": "pro"}); err != nil {
				t.Fatal(err)
			}
			u, ok, err := s.GetUser()
			if err != nil || !ok {
				t.Fatalf("GetUser: %v %v", ok, err)
			}
			if u.ID != "42" || u.Name != "Sam" {
				t.Fatalf("user = %+v", u)
			}
			if err := s.SaveAuthToken("tok"); err != nil {
				t.Fatal(err)
			}
			if err := s.AppendSessionScore(SessionScore{Score: 80}); err != nil {
				t.Fatal(err)
			}
			if err := s.AppendSessionScore(SessionScore{Score: 60}); err != nil {
				t.Fatal(err)
			}
			scores, _ := s.GetSessionScores()
			if len(scores) != 2 || scores[1].Score != 60 {
				t.Fatalf("scores = %v", scores)
			}

			ps := []scoring.PerformanceScore{{
				Question: "q", Answer: "a", Overall: 75,
				Scores:     scoring.Scores{scoring.Confidence: 70, scoring.Emotion: 80},
				Weaknesses: []string{"pace"}, Source: scoring.SourceHeuristic,
				At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			}}
			if err := s.SavePerformance("abc", ps); err != nil {
				t.Fatal(err)
			}
			got, err := s.Performance("abc")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(ps, got); diff != "" {
				t.Fatalf("performance mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff([]string{"abc"}, s.Sessions()); diff != "" {
				t.Fatalf("sessions mismatch (-want +got):\n%s", diff)
			}

			if err := s.Logout(); err != nil {
				t.Fatal(err)
			}
			if _, ok, _ := s.GetUser(); ok {
				t.Fatal("user kept after logout")
			}
			if tok, _ := s.AuthToken(); tok != "" {
				t.Fatalf("token kept after logout: %q", tok)
			}
			if got, _ := s.Performance("abc"); len(got) != 1 {
				t.Fatal("logout removed interview records")
			}
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	f, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := NewSession(f).SaveAuthToken("tok"); err != nil {
		t.Fatal(err)
	}
	if err := f.Set("bad", []byte("{")); err == nil {
		t.Fatal("invalid JSON accepted")
	}

	reopened, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if tok, _ := NewSession(reopened).AuthToken(); tok != "tok" {
		t.Fatalf("token = %q after reopen", tok)
	}
	if diff := cmp.Diff([]string{KeyAuthToken}, reopened.Keys()); diff != "" {
		t.Fatalf("keys mismatch:\n%s", diff)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}
