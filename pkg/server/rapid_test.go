package server

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestSanitizeNameNeverKeepsLineBreaks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.String().Draw(t, "name")
		got := sanitizeName(name)
		if strings.ContainsAny(got, "\r\n") {
			t.Fatalf("sanitizeName(%q) = %q still contains a line break", name, got)
		}
	})
}

func TestSanitizeNamePreservesCleanInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-zA-Z0-9 _.-]*`).Draw(t, "name")
		if got := sanitizeName(name); got != name {
			t.Fatalf("sanitizeName(%q) = %q, expected input unchanged", name, got)
		}
	})
}

func TestTrimLineEndingProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		line := rapid.String().Draw(t, "line")
		trimmed := trimLineEnding(line)

		if strings.HasSuffix(trimmed, "\n") || strings.HasSuffix(trimmed, "\r") {
			t.Fatalf("trimLineEnding(%q) = %q still ends with CR/LF", line, trimmed)
		}
		if again := trimLineEnding(trimmed); again != trimmed {
			t.Fatalf("trimLineEnding is not idempotent: %q -> %q -> %q", line, trimmed, again)
		}
		if !strings.HasPrefix(line, trimmed) {
			t.Fatalf("trimLineEnding(%q) = %q is not a prefix of the input", line, trimmed)
		}
	})
}

func TestTrimLineEndingStripsProtocolTerminators(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		body := rapid.StringMatching(`[a-zA-Z0-9 ]*[a-zA-Z0-9]`).Draw(t, "body")
		terminator := rapid.SampledFrom([]string{"\n", "\r\n", "\r", ""}).Draw(t, "terminator")

		if got := trimLineEnding(body + terminator); got != body {
			t.Fatalf("trimLineEnding(%q) = %q, want %q", body+terminator, got, body)
		}
	})
}
