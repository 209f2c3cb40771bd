package imagepulse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_ValidReport(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s)

	ev, err := r.Ingest(context.Background(), RawReport{Image: "nginx:latest", Outcome: "success"})
	require.NoError(t, err)
	assert.Equal(t, "nginx:latest", ev.Image)
	assert.Equal(t, OutcomeSuccess, ev.Outcome)
	assert.False(t, ev.Timestamp.IsZero())

	counters, err := s.QueryCounters(context.Background(), "nginx:latest")
	require.NoError(t, err)
	require.Len(t, counters, 1)
	assert.EqualValues(t, 1, counters[0].Total)
}

func TestIngest_TrimsImageName(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s)

	ev, err := r.Ingest(context.Background(), RawReport{Image: "  nginx:latest  ", Outcome: "failure", Detail: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, "nginx:latest", ev.Image)
	assert.Equal(t, "timeout", ev.Detail)
}

func TestIngest_EmptyImage_NoWrite(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s)

	_, err := r.Ingest(context.Background(), RawReport{Image: "", Outcome: "success"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "image", verr.Field)

	n, err := s.CountEvents(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n, "validation failure must not write to the store")
}

func TestIngest_InvalidOutcome_NoWrite(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s)

	_, err := r.Ingest(context.Background(), RawReport{Image: "nginx:latest", Outcome: "maybe"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "outcome", verr.Field)

	n, err := s.CountEvents(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngest_MalformedImage(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s)

	for _, image := range []string{"../etc/passwd", "bad image name", "-leading-dash"} {
		_, err := r.Ingest(context.Background(), RawReport{Image: image, Outcome: "success"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, "image %q should be rejected", image)
		assert.Equal(t, "image", verr.Field)
	}
}

func TestIngest_PropagatesWriteError(t *testing.T) {
	s, err := OpenStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	// No Initialize: the store has no tables, so the write must fail.
	r := NewRecorder(s)

	_, err = r.Ingest(context.Background(), RawReport{Image: "nginx:latest", Outcome: "success"})
	var werr *WriteError
	require.ErrorAs(t, err, &werr, "WriteError must propagate unchanged")
}
