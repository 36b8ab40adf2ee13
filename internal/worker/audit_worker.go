package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"protocol-rag/internal/domain"
	"protocol-rag/internal/infra/metrics"
)

const (
	defaultQueueSize   = 1024
	defaultMaxAttempts = 4
	writeTimeout       = 5 * time.Second
	initialBackoff     = 50 * time.Millisecond
	maxBackoff         = 2 * time.Second
)

// AuditWorkerConfig tunes the audit writer.
type AuditWorkerConfig struct {
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	WriteTimeout   time.Duration
}

// DefaultAuditWorkerConfig returns production defaults.
func DefaultAuditWorkerConfig() AuditWorkerConfig {
	return AuditWorkerConfig{
		QueueSize:      defaultQueueSize,
		MaxAttempts:    defaultMaxAttempts,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
		WriteTimeout:   writeTimeout,
	}
}

var _ domain.AuditSink = (*AuditWorker)(nil)

// AuditWorker persists audit entries off the response path.
// Entries that cannot be queued or written are logged as errors and counted, never dropped silently.
type AuditWorker struct {
	repo   domain.AuditRepository
	cfg    AuditWorkerConfig
	logger *slog.Logger

	queue    chan domain.AuditEntry
	stopChan chan struct{}
	done     chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool
}

func NewAuditWorker(repo domain.AuditRepository, cfg AuditWorkerConfig, logger *slog.Logger) *AuditWorker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = writeTimeout
	}
	return &AuditWorker{
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
		queue:    make(chan domain.AuditEntry, cfg.QueueSize),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Record enqueues entry without blocking.
func (w *AuditWorker) Record(entry domain.AuditEntry) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		w.dropped(entry, "stopped")
		return
	}
	select {
	case w.queue <- entry:
		metrics.AuditQueueDepth.Set(float64(len(w.queue)))
	default:
		w.dropped(entry, "queue_full")
	}
}

func (w *AuditWorker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	w.logger.Info("Starting AuditWorker", slog.Int("queue_size", w.cfg.QueueSize))
	go w.run()
}

// Stop rejects new entries and returns once every queued entry has been written or reported.
func (w *AuditWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	w.logger.Info("Stopping AuditWorker", slog.Int("pending", len(w.queue)))
	if !started {
		w.drain()
		return
	}
	close(w.stopChan)
	<-w.done
}

func (w *AuditWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stopChan:
			w.drain()
			return
		case entry := <-w.queue:
			w.write(entry)
		}
	}
}

func (w *AuditWorker) drain() {
	for {
		select {
		case entry := <-w.queue:
			w.write(entry)
		default:
			metrics.AuditQueueDepth.Set(0)
			return
		}
	}
}

func (w *AuditWorker) write(entry domain.AuditEntry) {
	metrics.AuditQueueDepth.Set(float64(len(w.queue)))

	var backoff time.Duration
	var err error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
		err = w.repo.Append(ctx, entry)
		cancel()
		if err == nil {
			return
		}
		if attempt == w.cfg.MaxAttempts {
			break
		}
		backoff = w.nextBackoff(backoff)
		w.logger.Warn("audit_write_retry",
			slog.String("audit_id", entry.ID.String()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))
		time.Sleep(backoff)
	}

	metrics.RecordAuditFailure("write_failed")
	w.logger.Error("audit_write_failed",
		slog.String("audit_id", entry.ID.String()),
		slog.String("request_id", entry.RequestID),
		slog.String("decision", string(entry.Verdict.Decision)),
		slog.Int("attempts", w.cfg.MaxAttempts),
		slog.String("error", err.Error()))
}

func (w *AuditWorker) dropped(entry domain.AuditEntry, reason string) {
	metrics.RecordAuditFailure(reason)
	w.logger.Error("audit_entry_dropped",
		slog.String("audit_id", entry.ID.String()),
		slog.String("request_id", entry.RequestID),
		slog.String("decision", string(entry.Verdict.Decision)),
		slog.String("reason", reason))
}

func (w *AuditWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return w.cfg.InitialBackoff
	}
	next := current * 2
	if next > w.cfg.MaxBackoff {
		return w.cfg.MaxBackoff
	}
	return next
}
