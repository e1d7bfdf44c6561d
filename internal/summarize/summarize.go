package summarize

import (
	"context"

	"notedigest/internal/content"
	"notedigest/internal/schedule"
)

// Summary is the structured digest produced from a batch of notes.
type Summary struct {
	Text            string   `json:"summary"`
	Tags            []string `json:"tags,omitempty"`
	ActionItems     []string `json:"action_items,omitempty"`
	Priority        string   `json:"priority,omitempty"` // high|medium|low
	WordCount       int      `json:"word_count"`
	ReadTimeMinutes int      `json:"read_time_minutes"`
}

// Summarizer turns content items plus options into a digest. Implementations
// are opaque to the scheduling core; failure is a single error.
type Summarizer interface {
	Summarize(ctx context.Context, notes []content.Note, opts schedule.SummaryOptions) (*Summary, error)
}
