package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldLanguage identifies the sign language code of a request.
	FieldLanguage = "language"
	// FieldBook identifies the book number of a request.
	FieldBook = "book"
	// FieldChapter identifies the chapter number of a request.
	FieldChapter = "chapter"
	// FieldVerses carries the canonical verse list of a request.
	FieldVerses = "verses"
	// FieldChecksum carries the chapter media checksum.
	FieldChecksum = "checksum"
	// FieldTier names the marker acquisition tier.
	FieldTier = "tier"
	// FieldState names the passage request state.
	FieldState = "state"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to try next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
)
