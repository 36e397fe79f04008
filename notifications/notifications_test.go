package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"competitive-insights/cache"
	"competitive-insights/models"
)

type fakeRepo struct {
	mu      sync.Mutex
	hooks   []Webhook
	loads   int
	records []DeliveryRecord
	loadErr error
}

func (r *fakeRepo) ActiveWebhooks(context.Context) ([]Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	return r.hooks, r.loadErr
}

func (r *fakeRepo) SaveDeliveryLog(_ context.Context, rec DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *fakeRepo) statuses() map[int64]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[int64]string{}
	for _, rec := range r.records {
		out[rec.WebhookID] = rec.Status
	}
	return out
}

func priceAlert() models.Alert {
	return models.Alert{
		ID: "alert-1", ASIN: "B0X", Rule: models.RulePriceChange, Severity: models.SeverityHigh,
		OldValue: 20, NewValue: 15, ChangeMagnitude: 0.25, Message: "Price decreased by 25.00% (20.00 -> 15.00)",
		TriggeredAt: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestShouldSend(t *testing.T) {
	a := priceAlert()
	tests := []struct {
		name string
		hook Webhook
		want bool
	}{
		{"no filters", Webhook{}, true},
		{"rule match", Webhook{Rules: []string{"price_change", "stock_change"}}, true},
		{"rule mismatch", Webhook{Rules: []string{"bsr_change"}}, false},
		{"asin match case insensitive", Webhook{ASINs: []string{"b0x"}}, true},
		{"asin mismatch", Webhook{ASINs: []string{"B0Y"}}, false},
		{"severity satisfied", Webhook{MinSeverity: "medium"}, true},
		{"severity equal", Webhook{MinSeverity: "high"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldSend(tt.hook, a))
		})
	}

	medium := a
	medium.Severity = models.SeverityMedium
	assert.False(t, shouldSend(Webhook{MinSeverity: "high"}, medium))
}

func TestWebhookDispatcher_Deliver(t *testing.T) {
	var hits atomic.Int32
	var got WebhookPayload
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	repo := &fakeRepo{hooks: []Webhook{
		{ID: 1, URL: srv.URL, AuthType: "BEARER", AuthValue: "s3cret"},
		{ID: 2, URL: srv.URL, Rules: []string{"stock_change"}},
		{ID: 3, URL: failing.URL},
	}}
	layer := cache.NewLayer(cache.NewMemoryStore(), zap.NewNop())
	wd := NewWebhookDispatcher(repo, layer, zap.NewNop())

	wd.Deliver(context.Background(), priceAlert())
	wd.Wait()

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, map[int64]string{1: DeliverySuccess, 3: DeliveryFailed}, repo.statuses())

	mu.Lock()
	assert.Equal(t, "alert-1", got.AlertID)
	assert.Equal(t, "price_change", got.Rule)
	assert.Contains(t, got.Message, "$20.00 -> $15.00")
	mu.Unlock()

	// Webhook configuration is served from cache until refreshed.
	wd.Deliver(context.Background(), priceAlert())
	wd.Wait()
	assert.Equal(t, 1, repo.loads)

	wd.RefreshCache(context.Background())
	wd.Deliver(context.Background(), priceAlert())
	wd.Wait()
	assert.Equal(t, 2, repo.loads)
}

func TestWebhookDispatcher_Throttle(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	repo := &fakeRepo{hooks: []Webhook{{ID: 9, URL: srv.URL, RatePerMinute: 2}}}
	wd := NewWebhookDispatcher(repo, nil, zap.NewNop())

	for i := 0; i < 4; i++ {
		wd.Deliver(context.Background(), priceAlert())
	}
	wd.Wait()

	assert.Equal(t, int32(2), hits.Load())
	throttled := 0
	for _, rec := range repo.records {
		if rec.Status == DeliveryThrottled {
			throttled++
		}
	}
	assert.Equal(t, 2, throttled)
}

func TestWebhookDispatcher_LoadError(t *testing.T) {
	repo := &fakeRepo{loadErr: errors.New("db down")}
	wd := NewWebhookDispatcher(repo, nil, zap.NewNop())
	wd.Deliver(context.Background(), priceAlert())
	wd.Wait()
	assert.Empty(t, repo.records)
}

type recordingSender struct {
	frames []proto.Message
	err    error
}

func (s *recordingSender) Send(_ context.Context, frame proto.Message) error {
	s.frames = append(s.frames, frame)
	return s.err
}

type countingDispatcher struct{ n int }

func (c *countingDispatcher) Deliver(context.Context, models.Alert) { c.n++ }

func TestSocketDispatcherAndFanout(t *testing.T) {
	sender := &recordingSender{}
	counter := &countingDispatcher{}
	fan := Fanout{NewSocketDispatcher(sender, zap.NewNop()), counter, nil}

	fan.Deliver(context.Background(), priceAlert())

	require.Len(t, sender.frames, 1)
	s, ok := sender.frames[0].(*structpb.Struct)
	require.True(t, ok)
	assert.Equal(t, "alert-1", s.AsMap()["id"])
	assert.Equal(t, 1, counter.n)

	failing := NewSocketDispatcher(&recordingSender{err: errors.New("broken pipe")}, zap.NewNop())
	failing.Deliver(context.Background(), priceAlert())
}
