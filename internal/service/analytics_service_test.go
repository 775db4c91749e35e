package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suvidha-service/internal/bucketing"
	"suvidha-service/internal/config"
	"suvidha-service/internal/model"
)

type fakeSink struct {
	mu   sync.Mutex
	rows [][]interface{}
	fail bool
}

func (f *fakeSink) BatchInsert(ctx context.Context, query string, data [][]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink unavailable")
	}
	f.rows = append(f.rows, data...)
	return nil
}

func newAnalyticsUnderTest(sink BatchSink) *AnalyticsService {
	buckets := bucketing.NewManager(&config.Config{Bucketing: config.BucketingConfig{PhoneBuckets: 64, EventBuckets: 16}})
	return NewAnalyticsService(sink, nil, nil, nil, buckets)
}

func TestAnalyticsFlush(t *testing.T) {
	sink := &fakeSink{}
	analytics := newAnalyticsUnderTest(sink)
	ctx := context.Background()

	now := time.Now().UTC()
	analytics.RecordLogin(model.LoginEvent{EventType: "login", CitizenID: "USER1", Phone: "9876543210", Success: true, OccurredAt: now})
	analytics.RecordLogin(model.LoginEvent{EventType: "login", CitizenID: "USER2", Phone: "9876543211", Success: false, Detail: "code expired", OccurredAt: now})

	require.NoError(t, analytics.Flush(ctx))
	assert.Len(t, sink.rows, 2)

	// Nothing buffered, flush is a no-op.
	require.NoError(t, analytics.Flush(ctx))
	assert.Len(t, sink.rows, 2)
}

func TestAnalyticsFlushRequeuesOnFailure(t *testing.T) {
	sink := &fakeSink{fail: true}
	analytics := newAnalyticsUnderTest(sink)
	ctx := context.Background()

	analytics.RecordLogin(model.LoginEvent{EventType: "login", CitizenID: "USER1", Phone: "9876543210", OccurredAt: time.Now().UTC()})

	require.Error(t, analytics.Flush(ctx))

	sink.mu.Lock()
	sink.fail = false
	sink.mu.Unlock()

	require.NoError(t, analytics.Flush(ctx))
	assert.Len(t, sink.rows, 1, "failed rows survive for the next flush")
}

func TestAnalyticsDisabled(t *testing.T) {
	analytics := newAnalyticsUnderTest(nil)

	analytics.RecordLogin(model.LoginEvent{EventType: "login"})
	require.NoError(t, analytics.Flush(context.Background()))
}
