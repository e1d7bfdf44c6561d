package summarize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"notedigest/internal/content"
	"notedigest/internal/schedule"
)

const wordsPerMinute = 200

func buildPrompt(notes []content.Note, opts schedule.SummaryOptions) (system string, prompt string) {
	var sys strings.Builder
	sys.WriteString("You summarize a user's personal notes into a digest.\n")
	sys.WriteString("Respond with a single JSON object and nothing else. Fields:\n")
	sys.WriteString(`  "summary": string (the digest, markdown allowed)` + "\n")
	sys.WriteString(`  "tags": array of short topic strings` + "\n")
	if opts.IncludeActionItems {
		sys.WriteString(`  "action_items": array of concrete follow-up strings` + "\n")
	}
	if opts.IncludePriority {
		sys.WriteString(`  "priority": one of "high", "medium", "low"` + "\n")
	}

	style := opts.Style
	if style == "" {
		style = "concise"
	}
	length := opts.Length
	if length == "" {
		length = "medium"
	}
	sys.WriteString(fmt.Sprintf("Style: %s. Target length: %s.\n", style, length))
	if len(opts.Focus) > 0 {
		sys.WriteString("Focus on: " + strings.Join(opts.Focus, ", ") + ".\n")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Notes from the last %d day(s):\n\n", opts.ContentDays))
	for i, note := range notes {
		b.WriteString(fmt.Sprintf("--- Note %d", i+1))
		if title := strings.TrimSpace(note.Title); title != "" {
			b.WriteString(": " + title)
		}
		b.WriteString(" ---\n")
		if len(note.Tags) > 0 {
			b.WriteString("Tags: " + strings.Join(note.Tags, ", ") + "\n")
		}
		b.WriteString(strings.TrimSpace(note.Body))
		b.WriteString("\n\n")
	}
	return sys.String(), b.String()
}

// parseSummary decodes the model output. Models occasionally wrap the JSON in
// a code fence or add prose around it, so fall back to the outermost braces.
func parseSummary(raw string) (*Summary, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, errors.New("empty summarizer response")
	}

	var summary Summary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		extracted, ok := extractJSONObject(text)
		if !ok {
			return nil, fmt.Errorf("parse summary response: %w", err)
		}
		if err := json.Unmarshal([]byte(extracted), &summary); err != nil {
			return nil, fmt.Errorf("parse summary response: %w", err)
		}
	}

	summary.Text = strings.TrimSpace(summary.Text)
	if summary.Text == "" {
		return nil, errors.New("summarizer returned no summary text")
	}
	summary.Priority = strings.ToLower(strings.TrimSpace(summary.Priority))

	summary.WordCount = len(strings.Fields(summary.Text))
	summary.ReadTimeMinutes = (summary.WordCount + wordsPerMinute - 1) / wordsPerMinute
	if summary.ReadTimeMinutes < 1 {
		summary.ReadTimeMinutes = 1
	}
	return &summary, nil
}

func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
