package topics

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"govdash/internal/domain/topic"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Fetcher is the part of Service the scheduler drives
type Fetcher interface {
	FetchTopics(ctx context.Context, network topic.Network) (topic.Topics, error)
}

// Locker is a distributed lock; with one configured, only the instance
// holding it runs a scheduled refresh
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

const refreshLockKey = "topics_refresh"

// Scheduler refreshes every network's topics on a cron schedule
type Scheduler struct {
	locker   Locker
	lockTTL  time.Duration
	fetcher  Fetcher
	networks []topic.Network
	spec     string
	cron     *cron.Cron
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	log      *logger.Logger
}

// NewScheduler validates spec; an empty spec yields a scheduler that only
// runs the initial refresh
func NewScheduler(fetcher Fetcher, spec string, networks []topic.Network, log *logger.Logger) (*Scheduler, error) {
	if spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return nil, errors.Wrapf(errors.ErrInvalidInput, "refresh schedule %q: %v", spec, err)
		}
	}
	if len(networks) == 0 {
		networks = topic.Networks()
	}

	return &Scheduler{
		fetcher:  fetcher,
		networks: networks,
		spec:     spec,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:      log.With("component", "topics_scheduler"),
	}, nil
}

// WithLocker makes scheduled ticks skip unless the lock is acquired. The
// initial refresh always runs locally.
func (s *Scheduler) WithLocker(l Locker, ttl time.Duration) *Scheduler {
	s.locker = l
	s.lockTTL = ttl
	return s
}

// Start refreshes once immediately, then on every tick until Stop
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RefreshAll(ctx)
	}()

	if s.spec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.wg.Add(1)
		defer s.wg.Done()
		s.tick(ctx)
	}); err != nil {
		return errors.Wrap(err, "schedule topics refresh")
	}

	s.cron.Start()
	s.log.Infow("Topics refresh scheduled", "schedule", s.spec, "networks", s.networks)
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.locker == nil {
		s.RefreshAll(ctx)
		return
	}

	ok, err := s.locker.AcquireLock(ctx, refreshLockKey, s.lockTTL)
	if err != nil {
		s.log.Warnw("Refresh lock unavailable, skipping tick", "error", err)
		return
	}
	if !ok {
		s.log.Debugw("Another instance holds the refresh lock")
		return
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), refreshLockKey); err != nil {
			s.log.Warnw("Failed to release refresh lock", "error", err)
		}
	}()

	s.RefreshAll(ctx)
}

// RefreshAll fetches every network sequentially. Failures are already
// reported through the fetcher's events and are only logged here.
func (s *Scheduler) RefreshAll(ctx context.Context) {
	for _, n := range s.networks {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.fetcher.FetchTopics(ctx, n); err != nil {
			s.log.Debugw("Scheduled refresh failed", "network", n, "error", err)
		}
	}
}

// Stop cancels in-flight refreshes and waits for them to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
