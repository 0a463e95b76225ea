// Package sink persists summaries of completed transfers.
package sink

import (
	"time"

	"github.com/meigma/xferwatch/core"
)

// Entry is the stored form of a completed transfer.
type Entry struct {
	ID            string  `json:"id"`
	Key           string  `json:"key"`
	URL           string  `json:"url"`
	Method        string  `json:"method"`
	Transport     string  `json:"transport"`
	ElapsedMS     int64   `json:"elapsed_ms"`
	DeclaredTotal int64   `json:"declared_total"`
	Loaded        int64   `json:"loaded"`
	Reported      float64 `json:"reported"`
	AverageSpeed  float64 `json:"avg_speed"`
	Digest        string  `json:"digest,omitempty"`
	NoBody        bool    `json:"no_body,omitempty"`
	Text          string  `json:"text"`
	CompletedAt   string  `json:"completed_at"`
}

// FromSummary converts a summary to its stored form.
func FromSummary(s core.Summary) Entry {
	return Entry{
		ID:            s.ID,
		Key:           s.Key,
		URL:           s.URL,
		Method:        s.Method,
		Transport:     string(s.Transport),
		ElapsedMS:     s.Elapsed.Milliseconds(),
		DeclaredTotal: s.DeclaredTotal,
		Loaded:        s.Loaded,
		Reported:      s.Reported,
		AverageSpeed:  s.AverageSpeed,
		Digest:        s.Digest,
		NoBody:        s.NoBody,
		Text:          s.Text,
		CompletedAt:   s.CompletedAt.UTC().Format(time.RFC3339Nano),
	}
}
