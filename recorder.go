package imagepulse

import (
	"context"
	"time"
)

// RawReport is the ingestion payload as it arrives over the wire,
// before any validation.
type RawReport struct {
	Image   string `json:"image"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Recorder validates and normalizes incoming pull reports before
// handing them to the store. Exactly one store write happens per valid
// report; none on validation failure.
type Recorder struct {
	store *Store
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// Ingest validates the report and records it as a pull event. It
// returns a *ValidationError naming the offending field on malformed
// input, or the store's *WriteError unchanged on storage failure.
func (r *Recorder) Ingest(ctx context.Context, raw RawReport) (PullEvent, error) {
	image, err := ValidateImageName(raw.Image)
	if err != nil {
		return PullEvent{}, &ValidationError{Field: "image", Reason: err.Error()}
	}

	outcome, err := ParseOutcome(raw.Outcome)
	if err != nil {
		return PullEvent{}, &ValidationError{Field: "outcome", Reason: err.Error()}
	}

	ev := PullEvent{
		Image:     image,
		Outcome:   outcome,
		Detail:    raw.Detail,
		Timestamp: time.Now(),
	}
	if err := r.store.RecordEvent(ctx, ev); err != nil {
		return PullEvent{}, err
	}
	eventsRecordedMetric.Inc()
	return ev, nil
}
