package services

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	languageKey  contextKey = "language"
	bookKey      contextKey = "book"
	chapterKey   contextKey = "chapter"
)

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPassage annotates context with the language, book, and chapter being served.
// Zero book or chapter values are left unset.
func WithPassage(ctx context.Context, language string, book, chapter int) context.Context {
	if language != "" {
		ctx = context.WithValue(ctx, languageKey, language)
	}
	if book > 0 {
		ctx = context.WithValue(ctx, bookKey, book)
	}
	if chapter > 0 {
		ctx = context.WithValue(ctx, chapterKey, chapter)
	}
	return ctx
}

// LanguageFromContext returns the language code if present.
func LanguageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(languageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// BookFromContext returns the book number if present.
func BookFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(bookKey).(int)
	return v, ok && v > 0
}

// ChapterFromContext returns the chapter number if present.
func ChapterFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(chapterKey).(int)
	return v, ok && v > 0
}
