package proxysetup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"govdash/internal/adapters/chain"
	"govdash/internal/domain/proxy"
	"govdash/internal/domain/topic"
	"govdash/internal/events"
	"govdash/internal/metrics"
	"govdash/pkg/errors"
	"govdash/pkg/logger"
)

// Confirmer reports the on-chain status of a transaction
type Confirmer interface {
	Status(ctx context.Context, network topic.Network, txHash string) (chain.Status, error)
}

// Watcher follows pending proxy setup transactions and advances the session
// once they confirm. It subscribes to PROXY_ADVANCE events, so every step
// that records a transaction gets watched without the service knowing.
type Watcher struct {
	svc       *Service
	confirmer Confirmer
	interval  time.Duration

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	watching map[uuid.UUID]context.CancelFunc
	wg       sync.WaitGroup

	log *logger.Logger
}

func NewWatcher(svc *Service, confirmer Confirmer, interval time.Duration, log *logger.Logger) *Watcher {
	if interval <= 0 {
		interval = 4 * time.Second
	}
	return &Watcher{
		svc:       svc,
		confirmer: confirmer,
		interval:  interval,
		watching:  make(map[uuid.UUID]context.CancelFunc),
		log:       log.With("component", "proxy_watcher"),
	}
}

// Start sets the context every watch runs under
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ctx, w.cancel = context.WithCancel(ctx)
}

// Stop cancels every watch and waits for them to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// Dispatch reacts to proxy events: advances start a watch, clears end one
func (w *Watcher) Dispatch(_ context.Context, e events.Event) {
	if e.Type != events.ProxyAdvance && e.Type != events.ProxyClear {
		return
	}
	id, err := uuid.Parse(e.SessionID)
	if err != nil {
		return
	}

	if e.Type == events.ProxyClear {
		w.unwatch(id)
		return
	}
	if p, ok := e.Payload.(AdvancePayload); ok && !p.To.AwaitsConfirmation() {
		return
	}
	w.Watch(id)
}

// Watch starts following the session's pending transaction. A session is
// watched at most once at a time.
func (w *Watcher) Watch(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx == nil || w.ctx.Err() != nil {
		return
	}
	if cancel, ok := w.watching[id]; ok {
		cancel()
	}

	ctx, cancel := context.WithCancel(w.ctx)
	w.watching[id] = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx, id)
	}()
}

func (w *Watcher) unwatch(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if cancel, ok := w.watching[id]; ok {
		cancel()
		delete(w.watching, id)
	}
}

// Watching reports whether a watch for id is running
func (w *Watcher) Watching(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.watching[id]
	return ok
}

func (w *Watcher) run(ctx context.Context, id uuid.UUID) {
	defer w.finish(ctx, id)

	session, err := w.svc.Get(ctx, id)
	if err != nil {
		return
	}
	step := session.State.Step
	txHash, ok := session.State.PendingTxHash()
	if !ok {
		return
	}
	next, _ := step.Next()

	log := w.log.With("session_id", id, "step", step, "tx_hash", txHash)
	log.Debugw("Watching transaction")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		status, err := w.check(ctx, session.Network, txHash)
		switch {
		case errors.Is(err, errors.ErrInvalidInput), errors.Is(err, errors.ErrUnavailable):
			log.Warnw("Transaction cannot be watched", "error", err)
			return
		case err != nil:
			log.Warnw("Confirmation lookup failed", "error", err)
		case status == chain.StatusFailed:
			log.Errorw("Proxy setup transaction failed", "error", errors.Newf("tx %s reverted", txHash))
			return
		case status == chain.StatusConfirmed:
			if _, err := w.svc.Advance(ctx, id, next, proxy.Payload{}); err != nil && !errors.Is(err, errors.ErrInvalidTransition) {
				log.Errorw("Failed to advance after confirmation", "error", err)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// the user may have closed or reset the wizard meanwhile
		current, err := w.svc.Get(ctx, id)
		if err != nil || current.State.Step != step {
			return
		}
	}
}

func (w *Watcher) check(ctx context.Context, network topic.Network, txHash string) (chain.Status, error) {
	status, err := w.confirmer.Status(ctx, network, txHash)
	label := string(status)
	if err != nil {
		label = "error"
	}
	metrics.ChainChecks.WithLabelValues(network.String(), label).Inc()
	return status, err
}

// finish forgets the watch unless a newer one replaced it
func (w *Watcher) finish(ctx context.Context, id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ctx.Err() == nil {
		if cancel, ok := w.watching[id]; ok {
			cancel()
			delete(w.watching, id)
		}
	}
}
