package bootstrap

import (
	"context"
	"sync"
	"time"

	"govdash/internal/adapters/kafka"
	pgclient "govdash/internal/adapters/postgres"
	redisclient "govdash/internal/adapters/redis"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Lifecycle manages graceful shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 30 * time.Second,
	}
}

// Shutdown performs coordinated cleanup of all components in order:
// 1. No new requests accepted
// 2. Scheduled refreshes and tx watches stop
// 3. Websocket clients are dropped
// 4. The relay consumer unblocks before waiting for goroutines
// 5. Producer closes after the last event is dispatched
// 6. Errors and logs flushed
// 7. Store connections last
func (l *Lifecycle) Shutdown(c *Container) {
	log := c.Log

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	log.Info("[1/8] Stopping HTTP server...")
	if c.HTTP != nil {
		httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
		if err := c.HTTP.Shutdown(httpCtx); err != nil {
			log.Errorw("HTTP server shutdown failed", "error", err)
		} else {
			log.Info("✓ HTTP server stopped")
		}
		httpCancel()
	}

	log.Info("[2/8] Stopping scheduler and confirmation watcher...")
	if c.Background.Scheduler != nil {
		c.Background.Scheduler.Stop()
	}
	if c.Background.Watcher != nil {
		c.Background.Watcher.Stop()
	}
	if c.Adapters.Confirmer != nil {
		c.Adapters.Confirmer.Close()
	}
	log.Info("✓ Background components stopped")

	log.Info("[3/8] Closing websocket clients...")
	if c.Adapters.Hub != nil {
		c.Adapters.Hub.Close()
	}

	log.Info("[4/8] Closing Kafka relay consumer...")
	l.closeKafkaConsumer(c.Adapters.RelayConsumer, log)

	log.Info("[5/8] Waiting for goroutines...")
	l.waitForGoroutines(c.WG, 5*time.Second, log)

	log.Info("[6/8] Closing Kafka producer...")
	if c.Adapters.KafkaProducer != nil {
		if err := c.Adapters.KafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	log.Info("[7/8] Flushing error tracker and logs...")
	l.flushErrorTracker(shutdownCtx, c.ErrorTracker, log)
	if err := logger.Sync(); err != nil {
		log.Debug("Log sync completed with warnings")
	}

	log.Info("[8/8] Closing store connections...")
	l.closeStores(c.PG, c.Redis, log)

	log.Info("✅ Graceful shutdown complete")
}

func (l *Lifecycle) closeKafkaConsumer(consumer *kafka.Consumer, log *logger.Logger) {
	if consumer == nil {
		return
	}
	if err := consumer.Close(); err != nil {
		log.Errorw("Kafka consumer close failed", "error", err)
	}
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

func (l *Lifecycle) flushErrorTracker(ctx context.Context, tracker errors.Tracker, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Warnw("Error tracker flush failed", "error", err)
	}
}

// closeStores closes whichever stores were connected
func (l *Lifecycle) closeStores(pg *pgclient.Client, rdb *redisclient.Client, log *logger.Logger) {
	var errs errors.MultiError

	if pg != nil {
		errs.Add(errors.Wrap(pg.Close(), "postgres"))
	}
	if rdb != nil {
		errs.Add(errors.Wrap(rdb.Close(), "redis"))
	}

	if errs.HasErrors() {
		log.Warnw("Some stores failed to close", "error", errs.ToError())
	} else {
		log.Info("✓ Stores closed")
	}
}
