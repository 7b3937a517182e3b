// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

package masking

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// --- Replace ---

func TestReplace_KnownSecret(t *testing.T) {
	masker := New([]string{"ghp_secret123"}, nil)
	got := masker.Replace("token is ghp_secret123 here")
	if got != "token is *** here" {
		t.Errorf("Replace = %q, want %q", got, "token is *** here")
	}
}

func TestReplace_LongestFirst(t *testing.T) {
	// The long secret embeds the short one. A short-first pass would
	// leave "xx***yy" in the output.
	masker := New([]string{"abc", "xxabcyy"}, nil)
	got := masker.Replace("value xxabcyy and abc")
	if got != "value *** and ***" {
		t.Errorf("Replace = %q, want %q", got, "value *** and ***")
	}
}

func TestReplace_MultipleOccurrences(t *testing.T) {
	masker := New([]string{"tok1", "tok2"}, nil)
	got := masker.Replace("tok1 tok2 tok1")
	if strings.Contains(got, "tok1") || strings.Contains(got, "tok2") {
		t.Errorf("Replace left a secret behind: %q", got)
	}
}

func TestReplace_TokenPrefix(t *testing.T) {
	masker := New(nil, []string{"ghp_", "ya29."})
	got := masker.Replace("upstream said: bad credentials for ghp_notinconfig99")
	if strings.Contains(got, "ghp_notinconfig99") {
		t.Errorf("prefix token not masked: %q", got)
	}
	got = masker.Replace("refresh gave ya29.a0AbCdEf")
	if strings.Contains(got, "ya29.a0AbCdEf") {
		t.Errorf("prefix token not masked: %q", got)
	}
}

func TestReplace_EmptySecretIgnored(t *testing.T) {
	masker := New([]string{""}, nil)
	if got := masker.Replace("unchanged"); got != "unchanged" {
		t.Errorf("Replace = %q, want unchanged", got)
	}
}

// --- MaskValue ---

func TestMaskValue(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"ghp_abc123xyz", "ghp_abc1***"},
		{"short", "***"},
		{"12345678", "***"},
		{"123456789", "12345678***"},
		{"", "***"},
	}
	for _, test := range tests {
		if got := MaskValue(test.value); got != test.want {
			t.Errorf("MaskValue(%q) = %q, want %q", test.value, got, test.want)
		}
	}
}

// --- MaskEmail ---

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"alice@example.com", "a***e@example.com"},
		{"ab@example.com", "***@example.com"},
		{"x@example.com", "***@example.com"},
		{"not-an-email", "***"},
		{"@example.com", "***"},
	}
	for _, test := range tests {
		if got := MaskEmail(test.address); got != test.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", test.address, got, test.want)
		}
	}
}

// --- Handler ---

func TestHandler_MasksMessageAndAttrs(t *testing.T) {
	var sink bytes.Buffer
	masker := New([]string{"ghp_secret123"}, nil)
	logger := slog.New(NewHandler(slog.NewTextHandler(&sink, nil), masker))

	logger.Info("request with ghp_secret123",
		"stderr", "auth failed for ghp_secret123",
		"exit_code", 1,
	)

	output := sink.String()
	if strings.Contains(output, "ghp_secret123") {
		t.Fatalf("log output contains secret: %q", output)
	}
	if !strings.Contains(output, Marker) {
		t.Errorf("log output missing marker: %q", output)
	}
	if !strings.Contains(output, "exit_code=1") {
		t.Errorf("non-string attr mangled: %q", output)
	}
}

func TestHandler_WithAttrsAndGroups(t *testing.T) {
	var sink bytes.Buffer
	masker := New([]string{"hunter2"}, nil)
	logger := slog.New(NewHandler(slog.NewTextHandler(&sink, nil), masker))

	logger.With("token", "hunter2").WithGroup("probe").Info("done", "detail", "saw hunter2")

	output := sink.String()
	if strings.Contains(output, "hunter2") {
		t.Fatalf("log output contains secret: %q", output)
	}
}
