package practice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/questions"
	"github.com/thinkhire/interview-pipeline/store"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func backend(t *testing.T, path string, status int, body any, seen func(map[string]any)) *clients.HTTP {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		if seen != nil {
			seen(in)
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return clients.NewHTTP(srv.URL, time.Second)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestGroupDiscussionScoresMeanOfSeven(t *testing.T) {
	var req map[string]any
	c := backend(t, "/api/analyze-gd", http.StatusOK, map[string]any{
		"technical_accuracy": 70, "clarity_structure": 80, "depth_of_knowledge": 60,
		"communication": 90, "confidence": 75, "reasoning": 65, "emotion": 85,
		"strengths":    []string{"clear"},
		"improvements": []string{"shorter"},
		"suggestions":  []string{"cite data"},
	}, func(m map[string]any) { req = m })

	clk := &clock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	g := NewGroupDiscussion(c, nil, 1, quiet())
	g.now = clk.now

	topic := g.NewTopic()
	if topic == "" {
		t.Fatal("no topic")
	}
	clk.t = clk.t.Add(45 * time.Second)
	if left := g.Remaining(); left != 75*time.Second {
		t.Fatalf("remaining = %s", left)
	}

	res, err := g.Submit(context.Background(), "Remote work suits focused tasks.")
	if err != nil {
		t.Fatal(err)
	}
	want := &Result{
		Question:    topic,
		Score:       75,
		Strengths:   []string{"clear"},
		Weaknesses:  []string{"shorter"},
		Suggestions: []string{"cite data"},
	}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}
	if req["timeTaken"] != float64(45) || req["topic"] != topic {
		t.Fatalf("request = %v", req)
	}
}

func TestGroupDiscussionTimeTakenCapped(t *testing.T) {
	var req map[string]any
	c := backend(t, "/api/analyze-gd", http.StatusInternalServerError, map[string]any{}, func(m map[string]any) { req = m })
	clk := &clock{t: time.Unix(0, 0)}
	g := NewGroupDiscussion(c, nil, 7, quiet())
	g.now = clk.now
	g.NewTopic()
	clk.t = clk.t.Add(10 * time.Minute)

	res, err := g.Submit(context.Background(), "answer")
	if err != nil {
		t.Fatal(err)
	}
	if req["timeTaken"] != float64(120) {
		t.Fatalf("timeTaken = %v", req["timeTaken"])
	}
	if !res.Mock || res.Score < 60 || res.Score > 99 {
		t.Fatalf("mock result = %+v", res)
	}
	if len(res.Strengths) != 3 || len(res.Weaknesses) != 2 || len(res.Suggestions) != 3 {
		t.Fatalf("mock lists = %+v", res)
	}
	if g.Remaining() != 0 {
		t.Fatal("remaining went negative")
	}
}

func TestGroupDiscussionValidation(t *testing.T) {
	g := NewGroupDiscussion(nil, nil, 1, quiet())
	var ve *ValidationError
	if _, err := g.Submit(context.Background(), "x"); !errors.As(err, &ve) || ve.Field != "topic" {
		t.Fatalf("err = %v", err)
	}
	g.NewTopic()
	if _, err := g.Submit(context.Background(), "   "); !errors.As(err, &ve) || ve.Field != "answer" {
		t.Fatalf("err = %v", err)
	}
}

func TestKnowledgeCheck(t *testing.T) {
	var req map[string]any
	c := backend(t, "/api/analyze-text-answer", http.StatusOK, map[string]any{
		"technical_accuracy": 90, "clarity_structure": 80, "depth_of_knowledge": 70,
		"communication": 60, "reasoning": 51,
		"strengths": []string{}, "improvements": []string{}, "suggestions": []string{},
	}, func(m map[string]any) { req = m })

	st := store.NewSession(store.NewMemory())
	bank := questions.Builtin()
	k := NewKnowledgeCheck(c, nil, st, quiet())

	var ve *ValidationError
	if _, _, err := k.Submit(context.Background(), "answer"); !errors.As(err, &ve) || ve.Field != "domain" {
		t.Fatalf("err = %v", err)
	}
	k.SelectDomain("ml")
	k.Advance()
	q, i := k.Question()
	if i != 1 || q != bank.RoundRobin("ml", 1) {
		t.Fatalf("question %d = %q", i, q)
	}

	res, raw, err := k.Submit(context.Background(), "Bias is error from assumptions.")
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 70 || raw == nil {
		t.Fatalf("score = %d", res.Score)
	}
	if req["domain"] != "ml" || req["question"] != q {
		t.Fatalf("request = %v", req)
	}
	hist, err := st.GetSessionScores()
	if err != nil || len(hist) != 1 || hist[0].Score != 70 || hist[0].Question != q {
		t.Fatalf("history = %v, %v", hist, err)
	}

	k.SelectDomain("ux")
	if _, i := k.Question(); i != 0 {
		t.Fatal("domain switch kept the index")
	}
}

func TestKnowledgeCheckSurfacesErrors(t *testing.T) {
	c := backend(t, "/api/analyze-text-answer", http.StatusBadGateway, map[string]any{}, nil)
	st := store.NewSession(store.NewMemory())
	k := NewKnowledgeCheck(c, nil, st, quiet())
	k.SelectDomain("se")

	_, _, err := k.Submit(context.Background(), "answer")
	var se *clients.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
	if hist, _ := st.GetSessionScores(); len(hist) != 0 {
		t.Fatal("failed answer recorded")
	}
}
