package summarize

import (
	"strings"
	"testing"

	"notedigest/internal/content"
	"notedigest/internal/schedule"
)

func TestBuildPromptIncludesNotesAndOptions(t *testing.T) {
	notes := []content.Note{
		{ID: "n1", Title: "standup", Body: "shipped the importer", Tags: []string{"work"}},
		{ID: "n2", Body: "buy milk"},
	}
	opts := schedule.SummaryOptions{
		Style:              "bullets",
		Length:             "short",
		Focus:              []string{"work", "health"},
		ContentDays:        3,
		IncludeActionItems: true,
		IncludePriority:    true,
	}
	system, prompt := buildPrompt(notes, opts)

	for _, want := range []string{"bullets", "short", "work, health", "action_items", "priority"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
	for _, want := range []string{"last 3 day(s)", "standup", "shipped the importer", "buy milk", "Tags: work"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPromptOmitsDisabledFields(t *testing.T) {
	system, _ := buildPrompt([]content.Note{{Body: "x"}}, schedule.SummaryOptions{ContentDays: 1})
	if strings.Contains(system, "action_items") || strings.Contains(system, "priority") {
		t.Fatalf("system prompt should not mention disabled fields:\n%s", system)
	}
}

func TestParseSummaryPlainJSON(t *testing.T) {
	raw := `{"summary":"Two things happened today.","tags":["work"],"action_items":["follow up"],"priority":"High"}`
	s, err := parseSummary(raw)
	if err != nil {
		t.Fatalf("parseSummary error: %v", err)
	}
	if s.Text != "Two things happened today." {
		t.Fatalf("text = %q", s.Text)
	}
	if s.Priority != "high" {
		t.Fatalf("priority = %q", s.Priority)
	}
	if s.WordCount != 4 {
		t.Fatalf("word count = %d", s.WordCount)
	}
	if s.ReadTimeMinutes != 1 {
		t.Fatalf("read time = %d", s.ReadTimeMinutes)
	}
}

func TestParseSummaryFencedJSON(t *testing.T) {
	raw := "Here is the digest:\n```json\n{\"summary\":\"fenced\",\"tags\":[]}\n```\n"
	s, err := parseSummary(raw)
	if err != nil {
		t.Fatalf("parseSummary error: %v", err)
	}
	if s.Text != "fenced" {
		t.Fatalf("text = %q", s.Text)
	}
}

func TestParseSummaryRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "no json here", `{"tags":["a"]}`} {
		if _, err := parseSummary(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseModelType(t *testing.T) {
	if mt, err := ParseModelType(""); err != nil || mt != ModelTypeOpenAI {
		t.Fatalf("default model type = %q err=%v", mt, err)
	}
	if mt, err := ParseModelType("Anthropic"); err != nil || mt != ModelTypeAnthropics {
		t.Fatalf("anthropic alias = %q err=%v", mt, err)
	}
	if _, err := ParseModelType("mistral"); err == nil {
		t.Fatalf("expected error for unsupported model type")
	}
}
