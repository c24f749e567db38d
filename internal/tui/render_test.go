package tui

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	if got := RenderMarkdown("", 80); got != "" {
		t.Fatalf("empty input rendered %q", got)
	}
	if got := RenderMarkdown("   \n", 80); got != "" {
		t.Fatalf("blank input rendered %q", got)
	}

	got := RenderMarkdown("# Stores\n\nreactive containers", 60)
	if !strings.Contains(got, "Stores") || !strings.Contains(got, "reactive containers") {
		t.Fatalf("rendered=%q", got)
	}
	if strings.HasSuffix(got, "\n") {
		t.Fatalf("trailing newline not trimmed: %q", got)
	}
}

func TestRenderMarkdown_ZeroWidthDefaults(t *testing.T) {
	got := RenderMarkdown("plain text", 0)
	if !strings.Contains(got, "plain text") {
		t.Fatalf("rendered=%q", got)
	}
}
