/**
 * @description
 * Asynchronous, fire-and-forget audit recorder. Record enqueues an entry onto
 * a buffered channel and returns immediately; a background worker persists
 * entries through the store. Persistence failures are logged and never
 * propagate to the caller, so the transfer success path is not coupled to
 * audit-write latency or availability.
 */

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/corebank/ledger-service/internal/domain"
)

// Sink is the persistence target; store.Repository satisfies it.
type Sink interface {
	AppendAuditLog(ctx context.Context, entry *domain.AuditLogEntry) error
}

const writeTimeout = 5 * time.Second

// Recorder drains queued audit entries into a Sink.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
	queue  chan domain.AuditLogEntry
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and the enqueue against Close
	closed bool
}

// NewRecorder starts the background worker. Buffer bounds how many entries
// may be pending before new ones are dropped.
func NewRecorder(sink Sink, logger *zap.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		sink:   sink,
		logger: logger,
		queue:  make(chan domain.AuditLogEntry, buffer),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues an audit entry. It never blocks: if the buffer is full the
// entry is dropped with a warning, because audit writes must not add latency
// to the operations they describe.
func (r *Recorder) Record(userID *uuid.UUID, action domain.AuditAction, ip, userAgent, status string, details map[string]any) {
	entry := domain.AuditLogEntry{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   details,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("audit recorder closed, entry dropped",
			zap.String("action", string(action)),
			zap.String("status", status))
		return
	}
	select {
	case r.queue <- entry:
	default:
		r.logger.Warn("audit buffer full, entry dropped",
			zap.String("action", string(action)),
			zap.String("status", status))
	}
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.AppendAuditLog(ctx, &entry); err != nil {
			r.logger.Error("audit write failed",
				zap.String("action", string(entry.Action)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting entries and waits for the queue to drain. Entries
// recorded after Close are dropped, not sent on the closed channel.
func (r *Recorder) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
