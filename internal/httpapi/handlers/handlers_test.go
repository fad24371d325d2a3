package handlers

import (
	"testing"
)

func TestNewQueueName(t *testing.T) {
	// The API enqueues into the same list the worker pops; both sides must
	// honor the same override.
	t.Run("default", func(t *testing.T) {
		t.Setenv("BATCH_QUEUE_NAME", "")
		h := New(Deps{})
		if h.queue != "forge:batches" {
			t.Fatalf("queue = %q, want forge:batches", h.queue)
		}
	})

	t.Run("override", func(t *testing.T) {
		t.Setenv("BATCH_QUEUE_NAME", "custom:render-queue")
		h := New(Deps{})
		if h.queue != "custom:render-queue" {
			t.Fatalf("queue = %q, want custom:render-queue", h.queue)
		}
	})
}
