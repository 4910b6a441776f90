package calendar

import (
	"context"
	"errors"
	"sync"
	"time"

	"booking_server/core/port/out"
	"booking_server/pkg/apperr"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// passGuard enforces at most one sync pass (or disconnect) per business.
// Within a process, push-triggered passes are coalesced and the running pass can be cancelled;
// across processes the SyncLocker serializes.
type passGuard struct {
	locker out.SyncLocker
	group  singleflight.Group

	mu      sync.Mutex
	running map[uuid.UUID]*runningPass
}

type runningPass struct {
	cancel context.CancelFunc
}

func newPassGuard(locker out.SyncLocker) *passGuard {
	return &passGuard{
		locker:  locker,
		running: make(map[uuid.UUID]*runningPass),
	}
}

// run takes the business lock (waiting at most wait) and calls fn with a cancellable context.
func (g *passGuard) run(ctx context.Context, businessID uuid.UUID, wait time.Duration, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, wait)
	release, err := g.locker.Acquire(lockCtx, businessID)
	cancel()
	if err != nil {
		if errors.Is(err, out.ErrLockBusy) || errors.Is(err, context.DeadlineExceeded) {
			return apperr.SyncInProgress(businessID.String())
		}
		return err
	}
	defer release()

	passCtx, cancelPass := context.WithCancel(ctx)
	defer cancelPass()

	pass := &runningPass{cancel: cancelPass}
	g.mu.Lock()
	g.running[businessID] = pass
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.running[businessID] == pass {
			delete(g.running, businessID)
		}
		g.mu.Unlock()
	}()

	return fn(passCtx)
}

// coalesce shares one in-flight result between callers with the same key.
// A caller whose ctx ends stops waiting; fn keeps running for the others.
func (g *passGuard) coalesce(ctx context.Context, key string, fn func() (any, error)) (any, error, bool) {
	select {
	case res := <-g.group.DoChan(key, fn):
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

// cancel stops the pass running in this process for businessID, if any.
func (g *passGuard) cancel(businessID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	pass, ok := g.running[businessID]
	if ok {
		pass.cancel()
	}
	return ok
}

// locked runs fn under the business lock with PassTimeout as its deadline, so the lock TTL
// outlives whatever fn does.
func (m *Manager) locked(ctx context.Context, businessID uuid.UUID, wait time.Duration, fn func(ctx context.Context) error) error {
	return m.guard.run(ctx, businessID, wait, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.PassTimeout)
		defer cancel()
		return fn(ctx)
	})
}
