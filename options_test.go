package audityzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zero-day-ai/audityzer/activity"
	"github.com/zero-day-ai/audityzer/integration"
	"github.com/zero-day-ai/audityzer/scan"
)

func TestManagerOptions(t *testing.T) {
	t.Run("WithLogger", func(t *testing.T) {
		logger := quietLogger()
		cfg := &config{}
		WithLogger(logger)(cfg)
		assert.Same(t, logger, cfg.logger)
	})

	t.Run("WithMaxConcurrent", func(t *testing.T) {
		cfg := &config{}
		WithMaxConcurrent(3)(cfg)
		assert.Equal(t, 3, cfg.maxConcurrent)

		WithMaxConcurrent(-1)(cfg)
		assert.Equal(t, 3, cfg.maxConcurrent, "negative limits are ignored")

		WithMaxConcurrent(0)(cfg)
		assert.Equal(t, 0, cfg.maxConcurrent)
	})

	t.Run("WithTargets", func(t *testing.T) {
		src := integration.Static([]integration.Target{{Name: "Asana", Connected: true, ProjectID: "a-1"}})
		cfg := &config{}
		WithTargets(src)(cfg)
		assert.NotNil(t, cfg.targets)
	})

	t.Run("WithTracerProvider nil", func(t *testing.T) {
		cfg := &config{}
		WithTracerProvider(nil)(cfg)
		assert.Nil(t, cfg.tracerProvider)
		assert.NotNil(t, newTracer(cfg.tracerProvider))
	})
}

func TestNew_UsesProvidedCollaborators(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := scan.NewStore()
	log := activity.New()

	mgr, err := New(staticAnalyzer(resultWith()),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return fixed }),
		WithStore(store),
		WithActivityLog(log),
	)
	require.NoError(t, err)
	assert.Same(t, store, mgr.Store())
	assert.Same(t, log, mgr.Activity())

	ticket, err := mgr.Submit(waitCtx(t), "0xCLOCK")
	require.NoError(t, err)
	job, err := ticket.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, fixed, job.SubmittedAt)
	assert.Equal(t, &fixed, job.CompletedAt)

	stored, ok := store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, scan.StatusCompleted, stored.Status)
}
