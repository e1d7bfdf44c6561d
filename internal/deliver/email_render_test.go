package deliver

import (
	"strings"
	"testing"
)

func TestRenderDigestHTMLMarkdown(t *testing.T) {
	html, err := renderDigestHTML("Daily digest", "# Hello\n\n- a\n- b\n\n`code`")
	if err != nil {
		t.Fatalf("renderDigestHTML error: %v", err)
	}
	if !strings.Contains(html, "<!doctype html>") {
		t.Fatalf("expected doctype in rendered html")
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "Hello") {
		t.Fatalf("expected markdown heading in rendered html")
	}
	if !strings.Contains(html, "<ul>") || !strings.Contains(html, "<li>") {
		t.Fatalf("expected markdown list in rendered html")
	}
	if !strings.Contains(html, "<code>code</code>") {
		t.Fatalf("expected inline code in rendered html")
	}
	if !strings.Contains(html, "Daily digest") {
		t.Fatalf("expected subject as title")
	}
}

func TestBuildPreheaderTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	pre := buildPreheader(long)
	if len(pre) > 170 {
		t.Fatalf("preheader too long: %d bytes", len(pre))
	}
	if !strings.HasSuffix(pre, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", pre)
	}
}

func TestBuildAlternativeEmailMultipart(t *testing.T) {
	msg := buildAlternativeEmail("from@example.com", "to@example.com", "Subject", "plain body", "<p>html body</p>")
	if !strings.Contains(msg, "Content-Type: multipart/alternative") {
		t.Fatalf("expected multipart/alternative content-type")
	}
	if !strings.Contains(msg, "Content-Type: text/plain") || !strings.Contains(msg, "plain body") {
		t.Fatalf("expected text/plain part")
	}
	if !strings.Contains(msg, "Content-Type: text/html") || !strings.Contains(msg, "<p>html body</p>") {
		t.Fatalf("expected text/html part")
	}
}

func TestBuildAlternativeEmailPlainFallback(t *testing.T) {
	msg := buildAlternativeEmail("from@example.com", "to@example.com", "Subject", "plain body", "")
	if strings.Contains(msg, "multipart/alternative") {
		t.Fatalf("expected single-part message without html body")
	}
	if !strings.Contains(msg, "Content-Type: text/plain") || !strings.Contains(msg, "plain body") {
		t.Fatalf("expected text/plain body")
	}
}
