package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probelab/callprobe/internal/log"
	"github.com/probelab/callprobe/pkg/scenario"
	"github.com/probelab/callprobe/pkg/score"
	"github.com/probelab/callprobe/pkg/store"
)

// Handoff turns a finished session into a persisted evaluation report.
// Run is idempotent per handoff instance; a session that reaches Finalizing
// twice still scores exactly once. A session with an empty ledger produces an
// explicit error report, never silence.
type Handoff struct {
	scorer  score.Scorer
	objects store.ObjectStore
	tests   scenario.Store

	once     sync.Once
	reportID string
}

func NewHandoff(scorer score.Scorer, objects store.ObjectStore, tests scenario.Store) *Handoff {
	return &Handoff{scorer: scorer, objects: objects, tests: tests}
}

// ReportID is the identifier of the produced report, set after Run.
func (h *Handoff) ReportID() string {
	return h.reportID
}

// Run assembles the transcript, scores it, and persists the report.
func (h *Handoff) Run(ctx context.Context, s *Session, errMsg string) {
	h.once.Do(func() {
		h.reportID = uuid.NewString()

		turns := s.Ledger().Snapshot()
		conversation := make([]score.Turn, len(turns))
		for i, t := range turns {
			conversation[i] = score.Turn{
				Speaker:   string(t.Speaker),
				Text:      t.Text,
				Timestamp: t.Timestamp,
				AudioURL:  t.AudioRef,
			}
		}

		var metrics score.Metrics
		switch {
		case len(conversation) == 0:
			// A call that connected but recorded nothing is its own failure
			// mode and must still surface as a report.
			metrics = score.Metrics{
				Successful:   false,
				ErrorMessage: nonEmpty(errMsg, "call produced no conversation turns"),
			}

		default:
			m, err := h.scorer.Score(ctx, s.test.Question, s.test.Expected, conversation)
			if err != nil {
				log.Error("bridge: scoring failed", "call", s.ID, "error", err)
				m = score.Metrics{Successful: false, ErrorMessage: "scoring failed: " + err.Error()}
			}
			if errMsg != "" {
				m.Successful = false
				m.ErrorMessage = nonEmpty(m.ErrorMessage, errMsg)
			}
			metrics = m
		}

		report := score.Report{
			ID:            h.reportID,
			TestID:        s.TestID,
			CallID:        s.ID,
			Question:      s.test.Question,
			Conversation:  conversation,
			Metrics:       metrics,
			ExecutionTime: time.Since(s.startedAt),
			CreatedAt:     time.Now().UTC(),
		}

		data, err := json.Marshal(report)
		if err != nil {
			log.Error("bridge: report marshal failed", "call", s.ID, "error", err)
			return
		}
		if _, err := h.objects.Put(ctx, store.ReportKey(h.reportID), "application/json", data); err != nil {
			log.Error("bridge: report persist failed", "call", s.ID, "report", h.reportID, "error", err)
		}

		status := scenario.StatusCompleted
		if !metrics.Successful {
			status = scenario.StatusFailed
		}
		if err := h.tests.UpdateStatus(ctx, s.TestID, status); err != nil {
			log.Warn("bridge: test status update failed", "call", s.ID, "test", s.TestID, "error", err)
		}

		log.Info("bridge: handoff complete", "call", s.ID, "report", h.reportID,
			"turns", len(conversation), "successful", metrics.Successful)
	})
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
