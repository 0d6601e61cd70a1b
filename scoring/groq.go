package scoring

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqModel   = "llama-3.3-70b-versatile"
	groqTimeout        = 30 * time.Second
)

// Groq is a Completer for any OpenAI compatible chat endpoint, Groq by
// default.
type Groq struct {
	client openaigo.Client
	model  string
}

func NewGroq(apiKey, baseURL, model string, httpClient *http.Client) (*Groq, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("groq api key is required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultGroqBaseURL
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultGroqModel
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: groqTimeout}
	}
	client := openaigo.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(1),
	)
	return &Groq{client: client, model: model}, nil
}

// NewGroqScorer wraps a Groq completer in an LLMScorer.
func NewGroqScorer(apiKey, baseURL, model string) (*LLMScorer, error) {
	g, err := NewGroq(apiKey, baseURL, model, nil)
	if err != nil {
		return nil, err
	}
	return &LLMScorer{Model: g, Source: SourceGroq}, nil
}

func (g *Groq) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(g.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(system),
			openaigo.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyReply
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", errEmptyReply
	}
	return out, nil
}
