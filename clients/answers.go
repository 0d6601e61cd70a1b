package clients

import "context"

type GDReq struct {
	Topic     string `json:"topic"`
	Answer    string `json:"answer"`
	TimeTaken int    `json:"timeTaken"`
}

type GDResp struct {
	TechnicalAccuracy *int     `json:"technical_accuracy"`
	ClarityStructure  *int     `json:"clarity_structure"`
	DepthOfKnowledge  *int     `json:"depth_of_knowledge"`
	Communication     *int     `json:"communication"`
	Confidence        *int     `json:"confidence"`
	Reasoning         *int     `json:"reasoning"`
	Emotion           *int     `json:"emotion"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	Suggestions       []string `json:"suggestions"`
}

func (r *GDResp) Validate() error {
	return require("/api/analyze-gd", map[string]*int{
		"technical_accuracy": r.TechnicalAccuracy,
		"clarity_structure":  r.ClarityStructure,
		"depth_of_knowledge": r.DepthOfKnowledge,
		"communication":      r.Communication,
		"confidence":         r.Confidence,
		"reasoning":          r.Reasoning,
		"emotion":            r.Emotion,
	})
}

// AnalyzeGD scores a group discussion contribution.
func (h *HTTP) AnalyzeGD(ctx context.Context, req GDReq) (*GDResp, error) {
	var out GDResp
	if err := h.postJSON(ctx, "/api/analyze-gd", req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

type TextAnswerReq struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Domain   string `json:"domain"`
}

type TextAnswerResp struct {
	TechnicalAccuracy    *int       `json:"technical_accuracy"`
	ClarityStructure     *int       `json:"clarity_structure"`
	DepthOfKnowledge     *int       `json:"depth_of_knowledge"`
	Communication        *int       `json:"communication"`
	Reasoning            *int       `json:"reasoning"`
	Confidence           *int       `json:"confidence,omitempty"`
	Emotion              *int       `json:"emotion,omitempty"`
	Strengths            []string   `json:"strengths"`
	Improvements         []string   `json:"improvements"`
	Suggestions          []string   `json:"suggestions"`
	RecommendedResources []Resource `json:"recommended_resources"`
}

func (r *TextAnswerResp) Validate() error {
	return require("/api/analyze-text-answer", map[string]*int{
		"technical_accuracy": r.TechnicalAccuracy,
		"clarity_structure":  r.ClarityStructure,
		"depth_of_knowledge": r.DepthOfKnowledge,
		"communication":      r.Communication,
		"reasoning":          r.Reasoning,
	})
}

// AnalyzeTextAnswer scores a typed knowledge-check answer.
func (h *HTTP) AnalyzeTextAnswer(ctx context.Context, req TextAnswerReq) (*TextAnswerResp, error) {
	var out TextAnswerResp
	if err := h.postJSON(ctx, "/api/analyze-text-answer", req, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

type SpeechAnswerReq struct {
	Transcript string `json:"transcript"`
}

// SpeechAnswerResp shares the text analysis schema; eye contact and body
// language only appear when the backend had video to look at.
type SpeechAnswerResp struct {
	TechnicalAccuracy *int     `json:"technical_accuracy"`
	ClarityStructure  *int     `json:"clarity_structure"`
	DepthOfKnowledge  *int     `json:"depth_of_knowledge"`
	Communication     *int     `json:"communication"`
	Confidence        *int     `json:"confidence"`
	Reasoning         *int     `json:"reasoning"`
	Emotion           *int     `json:"emotion"`
	EyeContactScore   *int     `json:"eye_contact_score,omitempty"`
	BodyLanguageScore *int     `json:"body_language_score,omitempty"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	Suggestions       []string `json:"suggestions"`
}

func (r *SpeechAnswerResp) Validate() error {
	return require("/api/analyze-speech-answer", map[string]*int{
		"technical_accuracy": r.TechnicalAccuracy,
		"clarity_structure":  r.ClarityStructure,
		"communication":      r.Communication,
		"confidence":         r.Confidence,
		"reasoning":          r.Reasoning,
	})
}

// AnalyzeSpeechAnswer scores a transcribed spoken answer.
func (h *HTTP) AnalyzeSpeechAnswer(ctx context.Context, transcript string) (*SpeechAnswerResp, error) {
	var out SpeechAnswerResp
	if err := h.postJSON(ctx, "/api/analyze-speech-answer", SpeechAnswerReq{Transcript: transcript}, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
