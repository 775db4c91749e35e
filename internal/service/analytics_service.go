package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"suvidha-service/internal/bucketing"
	"suvidha-service/internal/model"
	"suvidha-service/internal/repository/sqlite"
	"suvidha-service/internal/util"
)

// BatchSink receives buffered event rows. Implemented by the
// ClickHouse client; nil when analytics is disabled.
type BatchSink interface {
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

const loginEventsInsert = `INSERT INTO login_events (event_type, citizen_id, phone_bucket, date_bucket, success, detail, occurred_at)`

// DashboardMetrics is the admin overview, assembled from the helpdesk
// database in one parallel pass.
type DashboardMetrics struct {
	TotalRequests     int64   `json:"total_requests"`
	OpenRequests      int64   `json:"open_requests"`
	ResolvedRequests  int64   `json:"resolved_requests"`
	AvgResolutionDays float64 `json:"avg_resolution_days"`
	AvgRating         float64 `json:"avg_rating"`
	NewCitizens30d    int64   `json:"new_citizens_30d"`
	ActiveCitizens7d  int64   `json:"active_citizens_7d"`
	Collections30d    float64 `json:"collections_30d"`
}

// AnalyticsService buffers login audit events for the ClickHouse sink
// and computes dashboard aggregates.
type AnalyticsService struct {
	sink     BatchSink
	requests *sqlite.RequestRepository
	citizens *sqlite.CitizenRepository
	payments *sqlite.PaymentRepository
	buckets  *bucketing.Manager

	mu     sync.Mutex
	buffer []model.LoginEvent
}

func NewAnalyticsService(
	sink BatchSink,
	requests *sqlite.RequestRepository,
	citizens *sqlite.CitizenRepository,
	payments *sqlite.PaymentRepository,
	buckets *bucketing.Manager,
) *AnalyticsService {
	return &AnalyticsService{
		sink:     sink,
		requests: requests,
		citizens: citizens,
		payments: payments,
		buckets:  buckets,
	}
}

// RecordLogin queues one audit event. Safe for concurrent use; never
// blocks the login path.
func (s *AnalyticsService) RecordLogin(event model.LoginEvent) {
	if s.sink == nil {
		return
	}
	s.mu.Lock()
	s.buffer = append(s.buffer, event)
	s.mu.Unlock()
}

// Flush drains the buffer into the sink. Rows are re-queued on failure.
func (s *AnalyticsService) Flush(ctx context.Context) error {
	if s.sink == nil {
		return nil
	}

	s.mu.Lock()
	pending := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(pending))
	for _, ev := range pending {
		rows = append(rows, []interface{}{
			ev.EventType,
			ev.CitizenID,
			s.buckets.PhoneBucket(ev.Phone),
			s.buckets.DateBucket(ev.OccurredAt),
			ev.Success,
			ev.Detail,
			ev.OccurredAt,
		})
	}

	if err := s.sink.BatchInsert(ctx, loginEventsInsert, rows); err != nil {
		s.mu.Lock()
		s.buffer = append(pending, s.buffer...)
		s.mu.Unlock()
		return err
	}

	util.Debug("Flushed login events", util.Int("count", len(rows)))
	return nil
}

// Run flushes on an interval until the context ends, then drains once
// more.
func (s *AnalyticsService) Run(ctx context.Context, interval time.Duration) {
	if s.sink == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				util.Warn("Final analytics flush failed", util.ErrorField(err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				util.Warn("Analytics flush failed", util.ErrorField(err))
			}
		}
	}
}

// Dashboard gathers the admin metrics concurrently.
func (s *AnalyticsService) Dashboard(ctx context.Context) (*DashboardMetrics, error) {
	now := time.Now().UTC()
	metrics := &DashboardMetrics{}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		n, err := s.requests.CountByStatus(ctx, "")
		metrics.TotalRequests = n
		return err
	})
	g.Go(func() error {
		submitted, err := s.requests.CountByStatus(ctx, model.StatusSubmitted)
		if err != nil {
			return err
		}
		inProgress, err := s.requests.CountByStatus(ctx, model.StatusInProgress)
		if err != nil {
			return err
		}
		metrics.OpenRequests = submitted + inProgress
		return nil
	})
	g.Go(func() error {
		n, err := s.requests.CountByStatus(ctx, model.StatusResolved)
		metrics.ResolvedRequests = n
		return err
	})
	g.Go(func() error {
		v, err := s.requests.AverageResolutionDays(ctx)
		metrics.AvgResolutionDays = v
		return err
	})
	g.Go(func() error {
		v, err := s.requests.AverageRating(ctx)
		metrics.AvgRating = v
		return err
	})
	g.Go(func() error {
		n, err := s.citizens.CountCreatedSince(ctx, now.AddDate(0, 0, -30))
		metrics.NewCitizens30d = n
		return err
	})
	g.Go(func() error {
		n, err := s.citizens.CountActiveSince(ctx, now.AddDate(0, 0, -7))
		metrics.ActiveCitizens7d = n
		return err
	})
	g.Go(func() error {
		v, err := s.payments.TotalCollectedSince(ctx, now.AddDate(0, 0, -30))
		metrics.Collections30d = v
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return metrics, nil
}
