package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "proofpack", cfg.ServiceName)
	assert.False(t, cfg.Enabled, "telemetry must be opt-in")
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestDisabledProviderNoOps(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	// None of these may panic or dial anything with telemetry off.
	p.RecordExport(ctx, 12*time.Millisecond, nil)
	p.RecordExport(ctx, 12*time.Millisecond, errors.New("boom"))
	p.RecordVerification(ctx, "VALID", time.Millisecond)
	p.RecordVerification(ctx, "INVALID_PDO_HASH", time.Millisecond)

	opCtx, done := p.TrackExport(ctx)
	assert.NotNil(t, opCtx)
	done(nil)
	done(errors.New("late failure"))

	require.NoError(t, p.Shutdown(ctx))
}

func TestDisabledProviderStillTraces(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	spanCtx, span := p.StartSpan(ctx, "export")
	assert.NotNil(t, spanCtx)
	span.End()

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())
}

func TestNilConfigUsesDefaults(t *testing.T) {
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "proofpack", p.config.ServiceName)
}
