package clients

import (
	"context"
	"encoding/base64"

	"github.com/thinkhire/interview-pipeline/features"
)

type EnhancedLiveReq struct {
	Text           string            `json:"text"`
	VideoMetrics   features.Metrics  `json:"video_metrics"`
	FeatureWindows []features.Window `json:"feature_windows"`
}

type EnhancedLiveResp struct {
	TechnicalAccuracy *int     `json:"technical_accuracy"`
	Clarity           *int     `json:"clarity"`
	Depth             *int     `json:"depth"`
	Communication     *int     `json:"communication"`
	Confidence        *int     `json:"confidence"`
	OverallScore      *int     `json:"overall_score"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	WordCount         int      `json:"word_count"`
}

func (r *EnhancedLiveResp) Validate() error {
	return require("/api/enhanced-live-analysis", map[string]*int{
		"technical_accuracy": r.TechnicalAccuracy,
		"clarity":            r.Clarity,
		"depth":              r.Depth,
		"communication":      r.Communication,
		"confidence":         r.Confidence,
	})
}

// EnhancedLiveAnalysis scores an answer together with the behavioral windows
// captured while it was given.
func (h *HTTP) EnhancedLiveAnalysis(ctx context.Context, req EnhancedLiveReq) (*EnhancedLiveResp, error) {
	if req.FeatureWindows == nil {
		req.FeatureWindows = []features.Window{}
	}
	var out EnhancedLiveResp
	if err := h.postJSON(ctx, "/api/enhanced-live-analysis", req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

type VideoInterviewReq struct {
	VideoData string `json:"video_data"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

type VideoInterviewResp struct {
	SpeechAnswerResp
	DistractionScore      *int   `json:"distraction_score,omitempty"`
	FacialExpressionScore *int   `json:"facial_expression_score,omitempty"`
	PostureScore          *int   `json:"posture_score,omitempty"`
	FacialExpressions     string `json:"facial_expressions,omitempty"`
	Posture               string `json:"posture,omitempty"`
	Gestures              string `json:"gestures,omitempty"`
	EyeContact            string `json:"eye_contact,omitempty"`
}

// AnalyzeVideoInterview uploads the recorded answer, base64 encoded.
func (h *HTTP) AnalyzeVideoInterview(ctx context.Context, video []byte, question, answer string) (*VideoInterviewResp, error) {
	req := VideoInterviewReq{
		VideoData: base64.StdEncoding.EncodeToString(video),
		Question:  question,
		Answer:    answer,
	}
	var out VideoInterviewResp
	if err := h.postJSON(ctx, "/api/analyze-video-interview", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type WindowScores struct {
	WindowStart        int64  `json:"window_start"`
	WindowEnd          int64  `json:"window_end"`
	EyeContactScore    int    `json:"eye_contact_score"`
	HeadStabilityScore int    `json:"head_stability_score"`
	PostureScore       int    `json:"posture_score"`
	ConfidenceScore    int    `json:"confidence_score"`
	Notes              string `json:"notes"`
}

// VideoWindow posts one feature window to the per-window scorer.
func (h *HTTP) VideoWindow(ctx context.Context, w features.Window) (*WindowScores, error) {
	var out WindowScores
	if err := h.postJSON(ctx, "/video-analyze", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
