package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/probelab/callprobe/internal/httpc"
	"github.com/probelab/callprobe/internal/log"
)

const (
	chatCompletionsURL = "https://api.openai.com/v1/chat/completions"
	evaluationModel    = "gpt-4o-2024-05-13"

	// Judge completions run long; the shared client's timeout is too tight.
	judgeTimeout = 60 * time.Second
)

// OpenAI scores conversations with a chat-completions judge. On any API or
// parse failure it falls back to the heuristic scorer rather than failing
// the whole evaluation.
type OpenAI struct {
	apiKey   string
	url      string
	client   *http.Client
	fallback Heuristic
}

var _ Scorer = (*OpenAI)(nil)

func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		apiKey: apiKey,
		url:    chatCompletionsURL,
		client: httpc.NewClient(judgeTimeout),
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type judgment struct {
	Accuracy     float64 `json:"accuracy"`
	Empathy      float64 `json:"empathy"`
	ResponseTime float64 `json:"response_time"`
}

func (o *OpenAI) Score(ctx context.Context, question, expected string, conversation []Turn) (Metrics, error) {
	if len(conversation) == 0 {
		return Metrics{}, ErrEmptyConversation
	}

	m, err := o.judge(ctx, question, expected, conversation)
	if err != nil {
		log.Warn("score: model judge failed, using heuristic", "error", err)
		return o.fallback.Score(ctx, question, expected, conversation)
	}

	// Prefer the measured first-response gap over the model's estimate.
	if rt := firstResponseTime(conversation); rt > 0 {
		m.ResponseTime = rt
	}
	return m, nil
}

func (o *OpenAI) judge(ctx context.Context, question, expected string, conversation []Turn) (Metrics, error) {
	body, err := json.Marshal(chatRequest{
		Model: evaluationModel,
		Messages: []chatMessage{
			{Role: "system", Content: "You are an expert evaluator of customer service AI agents."},
			{Role: "user", Content: evaluationPrompt(question, expected, conversation)},
		},
		Temperature:    0.2,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return Metrics{}, fmt.Errorf("score: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return Metrics{}, fmt.Errorf("score: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Metrics{}, fmt.Errorf("score: evaluation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Metrics{}, fmt.Errorf("score: evaluation status %d: %s", resp.StatusCode, data)
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Metrics{}, fmt.Errorf("score: decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return Metrics{}, fmt.Errorf("score: no choices in response")
	}

	var j judgment
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &j); err != nil {
		return Metrics{}, fmt.Errorf("score: parse judgment: %w", err)
	}

	return Metrics{
		Accuracy:     clamp01(j.Accuracy),
		Empathy:      clamp01(j.Empathy),
		ResponseTime: j.ResponseTime,
		Successful:   true,
	}, nil
}

func evaluationPrompt(question, expected string, conversation []Turn) string {
	var b strings.Builder
	b.WriteString("Please evaluate this customer service conversation between an AI agent and a customer.\n\n")
	fmt.Fprintf(&b, "Original customer question: %q\n\n", question)
	b.WriteString("Conversation transcript:\n")
	for _, t := range conversation {
		fmt.Fprintf(&b, "%s: %s\n\n", t.Speaker, t.Text)
	}
	b.WriteString("Evaluate the conversation on the following metrics:\n\n")
	if expected != "" {
		fmt.Fprintf(&b, "1. Accuracy (0-1 scale): the expected answer is %q. Did the agent provide correct and complete information matching it?\n", expected)
	} else {
		b.WriteString("1. Accuracy (0-1 scale): did the agent provide correct and complete information?\n")
	}
	b.WriteString("2. Empathy (0-1 scale): did the agent acknowledge the customer's situation with appropriate tone and patience?\n")
	b.WriteString("3. Response time: estimate the average response time in seconds based on the conversation flow.\n\n")
	b.WriteString(`Respond in JSON: {"accuracy": 0.0, "empathy": 0.0, "response_time": 0.0}`)
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
