// Package score turns finished call transcripts into evaluation reports.
package score

import (
	"context"
	"errors"
	"time"
)

var ErrEmptyConversation = errors.New("score: empty conversation")

// Speaker labels for conversation turns. The evaluator is the AI-driven
// caller persona; the agent is the system under test on the phone side.
const (
	SpeakerEvaluator = "evaluator"
	SpeakerAgent     = "agent"
)

// Turn is one utterance in a finished conversation.
type Turn struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	AudioURL  string    `json:"audio_url,omitempty"`
}

// Metrics is the evaluation result for one call.
type Metrics struct {
	Accuracy     float64 `json:"accuracy"`
	Empathy      float64 `json:"empathy"`
	ResponseTime float64 `json:"response_time"`
	Successful   bool    `json:"successful"`
	ErrorMessage string  `json:"error_message,omitempty"`
}

// Report is the persisted outcome of one evaluation call.
type Report struct {
	ID            string        `json:"id"`
	TestID        string        `json:"test_id"`
	CallID        string        `json:"call_id"`
	Question      string        `json:"question"`
	Conversation  []Turn        `json:"conversation"`
	Metrics       Metrics       `json:"metrics"`
	ExecutionTime time.Duration `json:"execution_time"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Scorer evaluates a conversation against the expected answer.
type Scorer interface {
	Score(ctx context.Context, question, expected string, conversation []Turn) (Metrics, error)
}

// agentTexts pulls out everything the system under test said.
func agentTexts(conversation []Turn) []string {
	var texts []string
	for _, t := range conversation {
		if t.Speaker == SpeakerAgent {
			texts = append(texts, t.Text)
		}
	}
	return texts
}

// firstResponseTime is the gap between the first evaluator turn and the
// first agent turn that follows it. Zero if either side never spoke.
func firstResponseTime(conversation []Turn) float64 {
	var askedAt time.Time
	for _, t := range conversation {
		switch t.Speaker {
		case SpeakerEvaluator:
			if askedAt.IsZero() {
				askedAt = t.Timestamp
			}
		case SpeakerAgent:
			if !askedAt.IsZero() {
				return t.Timestamp.Sub(askedAt).Seconds()
			}
		}
	}
	return 0
}
