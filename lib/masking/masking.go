// Copyright 2026 The Keyward Authors
// SPDX-License-Identifier: Apache-2.0

// Package masking scrubs credential material from strings before they
// reach a log record or a response body.
//
// A Masker is built once at configuration load from the full set of
// configured secrets. Replacement is longest-first so that a secret
// which embeds another secret as a substring cannot leave a partial
// remnant behind. A second pass catches plaintext tokens by their
// well-known prefixes (ghp_, ya29., ...) even when the value is not in
// the configuration — upstream error messages sometimes echo tokens
// the proxy never issued.
package masking

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// Marker replaces every masked secret.
const Marker = "***"

// Masker replaces known secrets and prefix-recognizable tokens.
// Immutable after construction; safe for concurrent use.
type Masker struct {
	secrets []string       // sorted longest-first
	tokens  *regexp.Regexp // nil when no prefixes were registered
}

// New builds a Masker from the configured secret values and the
// plugin-declared token prefixes. Empty secrets are dropped.
func New(secrets []string, tokenPrefixes []string) *Masker {
	kept := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if s != "" {
			kept = append(kept, s)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if len(kept[i]) != len(kept[j]) {
			return len(kept[i]) > len(kept[j])
		}
		return kept[i] < kept[j]
	})

	var tokens *regexp.Regexp
	if len(tokenPrefixes) > 0 {
		quoted := make([]string, len(tokenPrefixes))
		for i, p := range tokenPrefixes {
			quoted[i] = regexp.QuoteMeta(p)
		}
		tokens = regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)[A-Za-z0-9_.\-]+`)
	}

	return &Masker{secrets: kept, tokens: tokens}
}

// Replace substitutes every configured secret and every
// prefix-recognizable token in text with the marker.
func (m *Masker) Replace(text string) string {
	for _, s := range m.secrets {
		text = strings.ReplaceAll(text, s, Marker)
	}
	if m.tokens != nil {
		text = m.tokens.ReplaceAllString(text, Marker)
	}
	return text
}

// MaskValue shortens a secret to a recognizable prefix for status
// output: "ghp_abc123xyz" becomes "ghp_abc1***". Values at or under
// the prefix length collapse entirely.
func MaskValue(value string) string {
	const visible = 8
	if len(value) <= visible {
		return Marker
	}
	return value[:visible] + Marker
}

// MaskEmail reduces an address to the first and last character of the
// local part plus the full domain: "alice@example.com" becomes
// "a***e@example.com". Strings without an "@" are masked entirely.
func MaskEmail(address string) string {
	at := strings.LastIndex(address, "@")
	if at <= 0 {
		return Marker
	}
	local, domain := address[:at], address[at+1:]
	if len(local) <= 2 {
		return Marker + "@" + domain
	}
	return local[:1] + Marker + local[len(local)-1:] + "@" + domain
}

// Handler is a slog.Handler that masks secrets in the message and in
// every string attribute value before delegating to the wrapped
// handler. Group and attr structure is preserved.
type Handler struct {
	inner  slog.Handler
	masker *Masker
}

// NewHandler wraps inner with masking.
func NewHandler(inner slog.Handler, masker *Masker) *Handler {
	return &Handler{inner: inner, masker: masker}
}

// Enabled reports whether the wrapped handler is enabled at level.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle masks the record and delegates.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	masked := slog.NewRecord(record.Time, record.Level, h.masker.Replace(record.Message), record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		masked.AddAttrs(h.maskAttr(attr))
		return true
	})
	return h.inner.Handle(ctx, masked)
}

// WithAttrs masks the attrs before handing them to the wrapped handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	maskedAttrs := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		maskedAttrs[i] = h.maskAttr(attr)
	}
	return &Handler{inner: h.inner.WithAttrs(maskedAttrs), masker: h.masker}
}

// WithGroup delegates to the wrapped handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), masker: h.masker}
}

func (h *Handler) maskAttr(attr slog.Attr) slog.Attr {
	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return slog.String(attr.Key, h.masker.Replace(value.String()))
	case slog.KindGroup:
		members := value.Group()
		maskedMembers := make([]any, 0, len(members))
		for _, member := range members {
			maskedMembers = append(maskedMembers, h.maskAttr(member))
		}
		return slog.Group(attr.Key, maskedMembers...)
	default:
		return attr
	}
}

var _ slog.Handler = (*Handler)(nil)
