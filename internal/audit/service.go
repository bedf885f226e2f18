// Package audit keeps the delivery attempt log: it exports attempts to xlsx and removes
// records past retention. The log is observability only; nothing is replayed from it.
package audit

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"playerhooks/internal/models"
)

// SheetName is the worksheet holding delivery attempts.
const SheetName = "deliveries"

// Columns of the exported sheet.
var Columns = []string{
	"id", "created_at", "job_id", "event_id", "topic", "url",
	"attempt", "status_code", "outcome", "error", "duration_ms",
}

// AttemptStore reads and prunes the attempt log.
type AttemptStore interface {
	ListAttempts(ctx context.Context, from, to time.Time) ([]models.DeliveryAttempt, error)
	DeleteAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service exports and prunes the attempt log.
type Service struct {
	store     AttemptStore
	retention time.Duration
	interval  time.Duration
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates an audit service. A non-positive retention means 31 days.
func NewService(store AttemptStore, retention time.Duration, logger zerolog.Logger) *Service {
	if retention <= 0 {
		retention = 31 * 24 * time.Hour
	}
	return &Service{
		store:     store,
		retention: retention,
		interval:  24 * time.Hour,
		logger:    logger.With().Str("component", "audit").Logger(),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Export writes attempts created in [from, to) as an xlsx workbook and returns the row count.
func (s *Service) Export(ctx context.Context, from, to time.Time, out io.Writer) (int, error) {
	attempts, err := s.store.ListAttempts(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list attempts: %w", err)
	}

	w := newSheetWriter()
	defer func() { _ = w.close() }()

	if err := w.addSheet(SheetName); err != nil {
		return 0, err
	}
	if err := w.writeHeader(Columns); err != nil {
		return 0, err
	}
	for _, a := range attempts {
		row := []any{
			a.ID, a.CreatedAt.UTC().Format(time.RFC3339), a.JobID, a.EventID, string(a.Topic), a.URL,
			a.Attempt, a.StatusCode, a.Outcome, a.Error, a.DurationMS,
		}
		if err := w.writeRow(row); err != nil {
			return 0, err
		}
	}

	if err := w.save(out); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	s.logger.Debug().Int("rows", len(attempts)).Time("from", from).Time("to", to).Msg("attempt log exported")
	return len(attempts), nil
}

// Cleanup deletes attempts older than the retention period.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	deleted, err := s.store.DeleteAttemptsBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		return 0, fmt.Errorf("delete old attempts: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("cleaned up attempt log")
	}
	return deleted, nil
}

// Start runs Cleanup once a day until ctx is done or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			if _, err := s.Cleanup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("attempt log cleanup failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the cleanup loop.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}
