package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffIsCapped(t *testing.T) {
	b := NewBackoff(10*time.Millisecond, 100*time.Millisecond)

	var last time.Duration
	for i := 0; i < 20; i++ {
		last = b.Next()
		assert.LessOrEqual(t, last, 100*time.Millisecond)
		assert.GreaterOrEqual(t, last, time.Duration(float64(10*time.Millisecond)*0.85))
	}
	assert.GreaterOrEqual(t, last, time.Duration(float64(100*time.Millisecond)*0.85))
	assert.Equal(t, 20, b.Attempts())

	b.Reset()
	assert.LessOrEqual(t, b.Next(), time.Duration(float64(10*time.Millisecond)*1.15))
}

func TestBackoffWaitCancelled(t *testing.T) {
	b := NewBackoff(time.Second, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, b.Wait(ctx))
	assert.False(t, Sleep(ctx, time.Second))
	assert.True(t, Sleep(context.Background(), 0))
}
