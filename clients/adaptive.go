package clients

import "context"

type AdaptiveReq struct {
	PreviousQuestion string         `json:"previous_question"`
	UserAnswer       string         `json:"user_answer"`
	Scores           map[string]int `json:"scores"`
	Weaknesses       []string       `json:"weaknesses"`
}

type AdaptiveResp struct {
	Category     string `json:"category,omitempty"`
	Action       string `json:"action,omitempty"`
	NextQuestion string `json:"next_question"`
}

// GenerateAdaptiveQuestion asks the backend for a follow-up question. An
// empty NextQuestion is returned as is; callers decide on the fallback.
func (h *HTTP) GenerateAdaptiveQuestion(ctx context.Context, req AdaptiveReq) (*AdaptiveResp, error) {
	if req.Scores == nil {
		req.Scores = map[string]int{}
	}
	if req.Weaknesses == nil {
		req.Weaknesses = []string{}
	}
	var out AdaptiveResp
	if err := h.postJSON(ctx, "/api/generate-adaptive-question", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
