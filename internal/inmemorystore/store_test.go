package inmemorystore

import (
	"testing"

	"github.com/vk/sweeptrack/internal/testutil"
	"github.com/vk/sweeptrack/internal/tracking"
)

func TestStoreSuite(t *testing.T) {
	testutil.RunStoreSuite(t, func(t *testing.T) tracking.Store {
		return New()
	})
}
