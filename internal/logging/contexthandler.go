package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns the attributes describing what the client is
// doing right now. It is evaluated once per emitted record.
type ContextProvider func() []slog.Attr

// ContextHandler appends the provider's attributes to every record it
// handles. Empty attributes and empty string values are skipped, so a loop
// that has not chosen a layer yet logs no layer="".
type ContextHandler struct {
	next     slog.Handler
	provider ContextProvider
}

// NewContextHandler wraps next. A nil provider makes the handler a
// pass-through.
func NewContextHandler(next slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{next: next, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider == nil {
		return h.next.Handle(ctx, r)
	}
	r = r.Clone()
	for _, a := range h.provider() {
		if skipAttr(a) {
			continue
		}
		r.AddAttrs(a)
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewContextHandler(h.next.WithAttrs(attrs), h.provider)
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return NewContextHandler(h.next.WithGroup(name), h.provider)
}

func skipAttr(a slog.Attr) bool {
	if a.Key == "" {
		return true
	}
	return a.Value.Kind() == slog.KindString && a.Value.String() == ""
}
