package score

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func judgeServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %q", req.ResponseFormat.Type)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
	}))
}

func sampleConversation() []Turn {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Turn{
		{Speaker: SpeakerEvaluator, Text: "What are your hours?", Timestamp: base},
		{Speaker: SpeakerAgent, Text: "Nine to five on weekdays.", Timestamp: base.Add(2 * time.Second)},
	}
}

func TestOpenAIScore(t *testing.T) {
	srv := judgeServer(t, http.StatusOK, `{"accuracy":0.9,"empathy":0.6,"response_time":4.5}`)
	defer srv.Close()

	s := NewOpenAI("sk-test")
	s.url = srv.URL

	m, err := s.Score(context.Background(), "What are your hours?", "Nine to five.", sampleConversation())
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if m.Accuracy != 0.9 || m.Empathy != 0.6 {
		t.Errorf("metrics = %+v", m)
	}
	if m.ResponseTime != 2.0 {
		t.Errorf("response time = %v, want measured 2.0 over model estimate", m.ResponseTime)
	}
	if !m.Successful {
		t.Error("successful = false")
	}
}

func TestOpenAIScoreClampsOutOfRange(t *testing.T) {
	srv := judgeServer(t, http.StatusOK, `{"accuracy":1.7,"empathy":-0.4,"response_time":1}`)
	defer srv.Close()

	s := NewOpenAI("sk-test")
	s.url = srv.URL

	m, err := s.Score(context.Background(), "q", "", sampleConversation())
	if err != nil {
		t.Fatal(err)
	}
	if m.Accuracy != 1.0 || m.Empathy != 0.0 {
		t.Errorf("metrics not clamped: %+v", m)
	}
}

func TestOpenAIScoreFallsBackOnAPIError(t *testing.T) {
	srv := judgeServer(t, http.StatusInternalServerError, "")
	defer srv.Close()

	s := NewOpenAI("sk-test")
	s.url = srv.URL

	m, err := s.Score(context.Background(), "q", "", sampleConversation())
	if err != nil {
		t.Fatalf("fallback should not error: %v", err)
	}
	// Heuristic path: neutral accuracy with no reference answer.
	if m.Accuracy != 0.5 {
		t.Errorf("fallback accuracy = %v, want 0.5", m.Accuracy)
	}
}

func TestOpenAIScoreFallsBackOnBadJudgment(t *testing.T) {
	srv := judgeServer(t, http.StatusOK, "not json at all")
	defer srv.Close()

	s := NewOpenAI("sk-test")
	s.url = srv.URL

	m, err := s.Score(context.Background(), "q", "", sampleConversation())
	if err != nil {
		t.Fatal(err)
	}
	if !m.Successful {
		t.Errorf("fallback metrics = %+v", m)
	}
}

func TestOpenAIScoreEmptyConversation(t *testing.T) {
	s := NewOpenAI("sk-test")
	if _, err := s.Score(context.Background(), "q", "", nil); err != ErrEmptyConversation {
		t.Errorf("err = %v, want ErrEmptyConversation", err)
	}
}
