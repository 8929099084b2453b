package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is one maintenance pass; it reports how many approvals it touched.
type Job func(ctx context.Context) (int, error)

// Maintenance runs a Job on a cron schedule.
type Maintenance struct {
	cron    *cron.Cron
	job     Job
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.Mutex
}

// NewMaintenance parses schedule ("@every 6h", "0 */6 * * *") and binds job.
func NewMaintenance(schedule string, job Job) (*Maintenance, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Maintenance{cron: cron.New(), job: job, ctx: ctx, cancel: cancel}
	if _, err := m.cron.AddFunc(schedule, m.RunOnce); err != nil {
		cancel()
		return nil, fmt.Errorf("approval cleanup schedule %q: %w", schedule, err)
	}
	return m, nil
}

// RunOnce runs the job now unless a run is already in progress.
func (m *Maintenance) RunOnce() {
	if !m.running.TryLock() {
		return
	}
	defer m.running.Unlock()

	n, err := m.job(m.ctx)
	if err != nil {
		log.Warn().Err(err).Msg("approval_cleanup_failed")
		return
	}
	if n > 0 {
		log.Info().Int("rejected", n).Msg("approval_cleanup")
	}
}

func (m *Maintenance) Start() {
	m.cron.Start()
}

// Stop halts scheduling and waits for a running job to return.
func (m *Maintenance) Stop() {
	m.cancel()
	<-m.cron.Stop().Done()
}
