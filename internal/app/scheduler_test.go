package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestScheduler_RefreshCatalog(t *testing.T) {
	calls := 0
	refresher := CatalogRefresherFunc(func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	NewScheduler(refresher, "@every 6h", zerolog.Nop()).RefreshCatalog()
	assert.Equal(t, 1, calls)
}

func TestScheduler_RefreshFailureIsLogged(t *testing.T) {
	refresher := CatalogRefresherFunc(func(ctx context.Context) error { return errors.New("boom") })
	assert.NotPanics(t, func() {
		NewScheduler(refresher, "@every 6h", zerolog.Nop()).RefreshCatalog()
	})
}

func TestScheduler_StartRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(CatalogRefresherFunc(func(context.Context) error { return nil }), "not a schedule", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := NewScheduler(CatalogRefresherFunc(func(context.Context) error { return nil }), "@every 6h", zerolog.Nop())
	assert.NoError(t, s.Start())
	<-s.Stop().Done()
}
