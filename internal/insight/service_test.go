package insight

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu        sync.Mutex
	saved     []*InteractionRecord
	links     map[string]string
	records   []*InteractionRecord
	lastSince time.Time

	saveErr error
	linkErr error
	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[string]string)}
}

func (f *fakeStore) SaveInteraction(_ context.Context, r *InteractionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeStore) LinkFeedback(_ context.Context, interactionID, feedbackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links[interactionID] = feedbackID
	return nil
}

func (f *fakeStore) InteractionsSince(_ context.Context, since time.Time) ([]*InteractionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.lastSince = since
	var out []*InteractionRecord
	for _, r := range f.records {
		if since.IsZero() || !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func newTestService(t *testing.T, store Store, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(store, zap.NewNop(), opts...)
	require.NoError(t, err)
	return svc
}

func floatPtr(v float64) *float64 { return &v }

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(nil, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store is required")
}

func TestLogAssignsIDAndTimestamp(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(t, f)

	rec := &InteractionRecord{Kind: "chat", Query: "hello"}
	require.NoError(t, svc.Log(context.Background(), rec))

	require.Len(t, f.saved, 1)
	assert.NotEmpty(t, rec.ID)
	assert.WithinDuration(t, time.Now().UTC(), rec.Timestamp, 5*time.Second)
}

func TestLogKeepsCallerFields(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(t, f)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &InteractionRecord{ID: "custom-id", Kind: "chat", Timestamp: at}
	require.NoError(t, svc.Log(context.Background(), rec))

	assert.Equal(t, "custom-id", rec.ID)
	assert.True(t, rec.Timestamp.Equal(at))
}

func TestLogNilRecord(t *testing.T) {
	svc := newTestService(t, newFakeStore())
	require.Error(t, svc.Log(context.Background(), nil))
}

func TestLogStoreFailure(t *testing.T) {
	f := newFakeStore()
	f.saveErr = errors.New("disk full")
	svc := newTestService(t, f)

	err := svc.Log(context.Background(), &InteractionRecord{Kind: "chat"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persisting interaction")
}

func TestAttachFeedback(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(t, f)

	require.NoError(t, svc.AttachFeedback(context.Background(), "int-1", "fb-1"))
	assert.Equal(t, "fb-1", f.links["int-1"])
}

func TestAttachFeedbackIgnoresEmptyIDs(t *testing.T) {
	f := newFakeStore()
	svc := newTestService(t, f)

	require.NoError(t, svc.AttachFeedback(context.Background(), "", "fb-1"))
	require.NoError(t, svc.AttachFeedback(context.Background(), "int-1", ""))
	assert.Empty(t, f.links)
}

func TestAttachFeedbackStoreFailure(t *testing.T) {
	f := newFakeStore()
	f.linkErr = errors.New("closed")
	svc := newTestService(t, f)

	err := svc.AttachFeedback(context.Background(), "int-1", "fb-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "linking feedback")
}
