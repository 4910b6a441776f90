package worker

import (
	"time"

	"booking_server/pkg/logger"

	"github.com/robfig/cron/v3"
)

// =============================================================================
// WatchRenewScheduler - push channel renewal
// =============================================================================
//
// Google channels expire after about a week. The scheduler queues a renew job on a
// cron spec; the job replaces every channel expiring inside the renew window.

// JobSubmitter accepts jobs for asynchronous execution.
type JobSubmitter interface {
	Submit(msg *Message) bool
}

type WatchRenewScheduler struct {
	submitter JobSubmitter
	spec      string
	cron      *cron.Cron
	now       func() time.Time
}

// NewWatchRenewScheduler creates a scheduler firing on spec ("@every 1h", "0 */6 * * *").
func NewWatchRenewScheduler(submitter JobSubmitter, spec string) *WatchRenewScheduler {
	if spec == "" {
		spec = "@every 1h"
	}
	return &WatchRenewScheduler{
		submitter: submitter,
		spec:      spec,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		now:       time.Now,
	}
}

// Start registers the job, runs one renewal immediately and starts the cron loop.
func (s *WatchRenewScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.enqueue); err != nil {
		return err
	}
	logger.Info("[WatchRenewScheduler] Starting with spec %q", s.spec)
	s.enqueue()
	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for a running enqueue.
func (s *WatchRenewScheduler) Stop() {
	logger.Info("[WatchRenewScheduler] Stopping...")
	<-s.cron.Stop().Done()
}

func (s *WatchRenewScheduler) enqueue() {
	msg := NewMessage(JobWatchRenew, map[string]any{
		"scheduled_at": s.now().UTC(),
	})
	msg.Priority = PriorityHigh
	if !s.submitter.Submit(msg) {
		logger.Warn("[WatchRenewScheduler] renew job %s not accepted", msg.ID)
	}
}
