package reconcile

// Disposition describes what the engine did with a webhook event. The
// transport layer decides retry behavior from the (Disposition, error) pair:
// a non-nil error means the event should be redelivered, everything else is
// acknowledged.
type Disposition string

const (
	// DispositionApplied means the event mutated local state.
	DispositionApplied Disposition = "applied"
	// DispositionSkipped covers not-found waits, catering-pipeline events
	// and no-op updates. Not an error: the event is acknowledged.
	DispositionSkipped Disposition = "skipped"
	// DispositionDuplicate means the watermark already covered the event.
	DispositionDuplicate Disposition = "duplicate"
)
