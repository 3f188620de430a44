package main

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/internal/workqueue"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Concurrent-Text-Search/pkg/resilience"
)

// queueCheck is degraded once any task has failed.
func queueCheck(q *workqueue.Queue) health.Check {
	return func(context.Context) health.ComponentHealth {
		msg := fmt.Sprintf("%d workers, %d pending, %d failed", q.Size(), q.Pending(), q.Failures())
		if q.Failures() > 0 {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: msg}
	}
}

// indexCheck reports the index size. A lock wait that outlives the probe
// deadline marks the index as down.
func indexCheck(idx *index.ConcurrentIndex) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		n, err := idx.NumTerms(ctx)
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d terms", n)}
	}
}

func cacheCheck(c *cache.ResultCache) health.Check {
	return func(context.Context) health.ComponentHealth {
		hits, misses := c.Stats()
		msg := fmt.Sprintf("breaker %s, %d hits, %d misses", c.BreakerState(), hits, misses)
		if c.BreakerState() != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: msg}
	}
}
