package scoring

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/thinkhire/interview-pipeline/clients"
	"github.com/thinkhire/interview-pipeline/features"
)

// Analyzer is the slice of the backend client the remote scorer calls.
type Analyzer interface {
	AnalyzeSpeechAnswer(ctx context.Context, transcript string) (*clients.SpeechAnswerResp, error)
	EnhancedLiveAnalysis(ctx context.Context, req clients.EnhancedLiveReq) (*clients.EnhancedLiveResp, error)
	AnalyzeVideoInterview(ctx context.Context, video []byte, question, answer string) (*clients.VideoInterviewResp, error)
}

const neutralScore = 50

// RemoteScorer asks the analysis backend. The speech analysis is required;
// the live and video analyses refine it when windows or a recording exist and
// are skipped with a warning when they fail.
type RemoteScorer struct {
	Client Analyzer
	Log    logrus.FieldLogger
}

func NewRemoteScorer(c Analyzer, log logrus.FieldLogger) *RemoteScorer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RemoteScorer{Client: c, Log: log.WithField("component", "remote-scorer")}
}

func (r *RemoteScorer) Score(ctx context.Context, sub Submission) (*Analysis, error) {
	speech, err := r.Client.AnalyzeSpeechAnswer(ctx, sub.Answer)
	if err != nil {
		return nil, &AnalysisError{Endpoint: "/api/analyze-speech-answer", Err: err}
	}

	scores := Scores{
		TechnicalAccuracy: clients.Int(speech.TechnicalAccuracy, neutralScore),
		Reasoning:         clients.Int(speech.Reasoning, neutralScore),
		ClarityStructure:  clients.Int(speech.ClarityStructure, neutralScore),
		Confidence:        clients.Int(speech.Confidence, neutralScore),
		Communication:     clients.Int(speech.Communication, neutralScore),
		Emotion:           clients.Int(speech.Emotion, neutralScore),
	}
	if speech.DepthOfKnowledge != nil {
		scores[DepthOfKnowledge] = *speech.DepthOfKnowledge
	}
	a := &Analysis{
		Scores:      scores,
		Strengths:   speech.Strengths,
		Weaknesses:  append([]string{}, speech.Improvements...),
		Suggestions: speech.Suggestions,
		WordCount:   len(strings.Fields(sub.Answer)),
		Source:      SourceRemote,
	}

	eye, body := speech.EyeContactScore, speech.BodyLanguageScore

	if len(sub.Windows) > 0 {
		m := sub.Metrics()
		r.live(ctx, sub, m, a)
		eye = firstSet(eye, round(m.EyeContact))
		body = firstSet(body, round(m.BodyLanguage()))
	}

	if len(sub.Video) > 0 {
		if v := r.video(ctx, sub); v != nil {
			blend(scores, TechnicalAccuracy, v.TechnicalAccuracy)
			blend(scores, Reasoning, v.Reasoning)
			blend(scores, ClarityStructure, v.ClarityStructure)
			blend(scores, Confidence, v.Confidence)
			blend(scores, Communication, v.Communication)
			blend(scores, Emotion, v.Emotion)
			eye = firstSet(v.EyeContactScore, eye)
			body = firstSet(v.BodyLanguageScore, body)
			if strings.Contains(strings.ToLower(v.Posture), "poor") {
				a.Weaknesses = append(a.Weaknesses, "Poor posture")
			}
		}
	}

	if eye != nil || body != nil {
		scores[EyeContact] = clients.Int(eye, neutralScore)
		scores[BodyLanguage] = clients.Int(body, neutralScore)
		if scores[EyeContact] < 70 {
			a.Weaknesses = append(a.Weaknesses, "Poor eye contact")
		}
		if scores[BodyLanguage] < 70 {
			a.Weaknesses = append(a.Weaknesses, "Inadequate body language")
		}
	}
	return a.finish(), nil
}

// live folds the enhanced live analysis into a. The backend names two
// dimensions differently.
func (r *RemoteScorer) live(ctx context.Context, sub Submission, m features.Metrics, a *Analysis) {
	resp, err := r.Client.EnhancedLiveAnalysis(ctx, clients.EnhancedLiveReq{
		Text:           sub.Answer,
		VideoMetrics:   m,
		FeatureWindows: sub.Windows,
	})
	if err != nil {
		r.Log.WithError(err).Warn("enhanced live analysis unavailable, using speech analysis only")
		return
	}
	blend(a.Scores, TechnicalAccuracy, resp.TechnicalAccuracy)
	blend(a.Scores, ClarityStructure, resp.Clarity)
	blend(a.Scores, DepthOfKnowledge, resp.Depth)
	blend(a.Scores, Communication, resp.Communication)
	blend(a.Scores, Confidence, resp.Confidence)
	a.Strengths = appendNew(a.Strengths, resp.Strengths)
	a.Weaknesses = appendNew(a.Weaknesses, resp.Improvements)
	if resp.WordCount > 0 {
		a.WordCount = resp.WordCount
	}
}

func (r *RemoteScorer) video(ctx context.Context, sub Submission) *clients.VideoInterviewResp {
	resp, err := r.Client.AnalyzeVideoInterview(ctx, sub.Video, sub.Question, sub.Answer)
	if err != nil {
		r.Log.WithError(err).Warn("video interview analysis unavailable")
		return nil
	}
	return resp
}

// blend averages v into dim, rounding down. A dimension not yet scored takes
// v as is; a nil v leaves the score alone.
func blend(s Scores, dim string, v *int) {
	if v == nil {
		return
	}
	cur, ok := s[dim]
	if !ok {
		s[dim] = *v
		return
	}
	s[dim] = (cur + *v) / 2
}

func firstSet(vs ...*int) *int {
	for _, v := range vs {
		if v != nil {
			return v
		}
	}
	return nil
}

func round(f float64) *int {
	v := int(f + 0.5)
	return &v
}

func appendNew(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range src {
		if !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}
