package imagepulse

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	workerIdleDelay  = 500 * time.Millisecond
	workerErrorDelay = time.Second
)

// Worker drains the pull job queue: it claims jobs under a lease,
// executes pulls bounded by a global and a per-registry concurrency
// limit, and records the resulting pull events and job metrics.
type Worker struct {
	store  *Store
	puller ImagePuller
	lease  time.Duration

	concurrency    int64
	globalSem      *semaphore.Weighted
	perRegistryMax int64

	mu           sync.Mutex
	registrySems map[string]*semaphore.Weighted
}

// NewWorker creates a worker with the given concurrency bounds.
func NewWorker(store *Store, puller ImagePuller, concurrency, perRegistryMax int64, lease time.Duration) *Worker {
	return &Worker{
		store:          store,
		puller:         puller,
		lease:          lease,
		concurrency:    concurrency,
		globalSem:      semaphore.NewWeighted(concurrency),
		perRegistryMax: perRegistryMax,
		registrySems:   make(map[string]*semaphore.Weighted),
	}
}

// Run claims and executes jobs until the context is canceled. Jobs in
// flight when the context dies keep their lease and are reclaimed by
// the next runner.
func (w *Worker) Run(ctx context.Context) {
	log.WithFields(log.Fields{
		"concurrency":      w.concurrency,
		"per_registry_max": w.perRegistryMax,
		"lease":            w.lease,
	}).Info("job runner started")

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.store.ClaimNextJob(ctx, w.lease)
		if err != nil {
			log.WithError(err).Warn("failed to claim next job")
			if !sleepCtx(ctx, workerErrorDelay) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, workerIdleDelay) {
				return
			}
			continue
		}

		if err := w.globalSem.Acquire(ctx, 1); err != nil {
			return
		}
		go func(job *Job) {
			defer w.globalSem.Release(1)
			w.execute(ctx, job)
		}(job)
	}
}

// execute runs one claimed job end to end.
func (w *Worker) execute(ctx context.Context, job *Job) {
	registryHost := ParseRegistry(job.Image)
	logger := log.WithFields(log.Fields{"job": job.ID, "image": job.Image, "registry": registryHost})

	regSem := w.registrySem(registryHost)
	if err := regSem.Acquire(ctx, 1); err != nil {
		return
	}
	defer regSem.Release(1)

	logger.Info("starting pull")

	stopHeartbeat := w.startHeartbeat(ctx, job.ID)
	stats, pullErr := w.puller.Pull(ctx, job.Image)
	stopHeartbeat()

	if pullErr != nil {
		logger.WithError(pullErr).Error("pull failed")
		errorsTotalMetric.Inc()
		ev := PullEvent{Image: job.Image, Outcome: OutcomeFailure, Detail: pullErr.Error()}
		if err := w.store.RecordEvent(ctx, ev); err != nil {
			logger.WithError(err).Error("failed to record failure event")
		}
		if err := w.store.FailJob(ctx, job.ID, pullErr.Error()); err != nil {
			logger.WithError(err).Error("failed to mark job failed")
		}
		return
	}

	pullsCountMetric.Inc()
	if err := w.store.RecordEvent(ctx, PullEvent{Image: job.Image, Outcome: OutcomeSuccess}); err != nil {
		logger.WithError(err).Error("failed to record success event")
	}
	w.recordStats(ctx, job, registryHost, stats, logger)

	if err := w.store.CompleteJob(ctx, job.ID, stats.Log); err != nil {
		logger.WithError(err).Error("failed to mark job completed")
		return
	}
	logger.Infof("pulled %s in %s", humanize.Bytes(uint64(stats.Bytes)), stats.Duration.Round(time.Millisecond))
}

// recordStats stores the per-job measurements derived from PullStats.
func (w *Worker) recordStats(ctx context.Context, job *Job, registryHost string, stats PullStats, logger *log.Entry) {
	elapsedMs := float64(stats.Duration.Milliseconds())
	var speedMbps float64
	if elapsedMs > 0 {
		speedMbps = float64(stats.Bytes) * 8 / (elapsedMs / 1000) / 1_000_000
	}

	measurements := []struct {
		key   string
		value float64
		unit  string
	}{
		{"download_time_ms", elapsedMs, "ms"},
		{"image_size_bytes", float64(stats.Bytes), "bytes"},
		{"average_speed_mbps", speedMbps, "mbps"},
	}
	for _, m := range measurements {
		if err := w.store.InsertJobMetric(ctx, job.ID, m.key, m.value, m.unit, nil); err != nil {
			logger.WithError(err).WithField("key", m.key).Error("failed to store job metric")
		}
	}

	labels := map[string]any{
		"image":         job.Image,
		"registry_host": registryHost,
		"layer_count":   stats.Layers,
	}
	if err := w.store.InsertJobMetric(ctx, job.ID, "layers_observed", float64(stats.Layers), "", labels); err != nil {
		logger.WithError(err).Error("failed to store layers metric")
	}
}

// startHeartbeat extends the job's lease at half the lease interval
// until the returned stop function is called.
func (w *Worker) startHeartbeat(ctx context.Context, jobID string) func() {
	interval := w.lease / 2
	if interval < 50*time.Millisecond {
		interval = 50 * time.Millisecond
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.store.HeartbeatJob(ctx, jobID, w.lease); err != nil {
					log.WithError(err).WithField("job", jobID).Warn("heartbeat failed")
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// registrySem returns the semaphore bounding concurrent pulls against
// one registry, creating it on first use.
func (w *Worker) registrySem(registryHost string) *semaphore.Weighted {
	w.mu.Lock()
	defer w.mu.Unlock()
	sem, ok := w.registrySems[registryHost]
	if !ok {
		sem = semaphore.NewWeighted(w.perRegistryMax)
		w.registrySems[registryHost] = sem
	}
	return sem
}

// sleepCtx sleeps for d unless the context dies first; reports whether
// the full sleep happened.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
