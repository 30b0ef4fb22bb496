// Package store persists call artifacts: per-turn audio recordings and
// finished evaluation reports.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("store: object not found")
	ErrAlreadyExists = errors.New("store: object already exists")
)

// ObjectStore is a write-once blob store. Put fails with ErrAlreadyExists if
// the key is taken; recordings and reports are never rewritten.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// AudioKey builds the object key for one turn's recording.
func AudioKey(testID, callID string, turn int, speaker string, at time.Time) string {
	return fmt.Sprintf("tests/%s/calls/%s/audio/%d_%s_%d.wav",
		testID, callID, turn, speaker, at.UnixMilli())
}

// ReportKey builds the object key for a finished evaluation report.
func ReportKey(reportID string) string {
	return fmt.Sprintf("reports/%s.json", reportID)
}
