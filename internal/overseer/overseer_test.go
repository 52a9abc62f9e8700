package overseer

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/zapengine/internal/models"
	"github.com/jmylchreest/zapengine/internal/overseer/store"
	"github.com/jmylchreest/zapengine/internal/variant"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeWorld holds the shared in-memory tables behind the fake store
// implementations below. Splitting by interface (rather than one type
// implementing all three) avoids a single type needing two different
// GetByID signatures.
type fakeWorld struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*models.User
	byKey     map[string]uuid.UUID
	endpoints map[string]*models.IngestEndpoint
	streams   map[uuid.UUID]*models.UserStream
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		users:     make(map[uuid.UUID]*models.User),
		byKey:     make(map[string]uuid.UUID),
		endpoints: make(map[string]*models.IngestEndpoint),
		streams:   make(map[uuid.UUID]*models.UserStream),
	}
}

func (w *fakeWorld) addUser(u *models.User) {
	w.users[u.ID] = u
	w.byKey[u.StreamKey] = u.ID
}

func (w *fakeWorld) addEndpoint(e *models.IngestEndpoint) {
	w.endpoints[e.ID] = e
}

type fakeUserStore struct{ w *fakeWorld }

func (f fakeUserStore) GetByStreamKey(ctx context.Context, streamKey string) (*models.User, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	id, ok := f.w.byKey[streamKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *f.w.users[id]
	return &cp, nil
}

func (f fakeUserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	u, ok := f.w.users[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f fakeUserStore) DebitBalance(ctx context.Context, userID uuid.UUID, amount models.Money) (models.Money, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	u, ok := f.w.users[userID]
	if !ok {
		return 0, store.ErrNotFound
	}
	u.BalanceMsat = u.BalanceMsat.Sub(amount)
	return u.BalanceMsat, nil
}

func (f fakeUserStore) SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	if u, ok := f.w.users[userID]; ok {
		u.IsBlocked = blocked
	}
	return nil
}

func (f fakeUserStore) ListBlocked(ctx context.Context) ([]uuid.UUID, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var ids []uuid.UUID
	for id, u := range f.w.users {
		if u.IsBlocked {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeEndpointStore struct{ w *fakeWorld }

func (f fakeEndpointStore) GetByName(ctx context.Context, name string) (*models.IngestEndpoint, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	for _, e := range f.w.endpoints {
		if e.Name == name {
			cp := *e
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f fakeEndpointStore) GetByID(ctx context.Context, id string) (*models.IngestEndpoint, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	e, ok := f.w.endpoints[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

type fakeStreamStore struct{ w *fakeWorld }

func (f fakeStreamStore) Create(ctx context.Context, stream *models.UserStream) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	cp := *stream
	f.w.streams[stream.ID] = &cp
	return nil
}

func (f fakeStreamStore) Get(ctx context.Context, streamID uuid.UUID) (*models.UserStream, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	s, ok := f.w.streams[streamID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f fakeStreamStore) AddProgress(ctx context.Context, streamID uuid.UUID, durationSeconds float64, cost models.Money) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	s, ok := f.w.streams[streamID]
	if !ok {
		return store.ErrNotFound
	}
	s.DurationSeconds += durationSeconds
	s.CostMsat += cost
	return nil
}

func (f fakeStreamStore) MarkEnded(ctx context.Context, streamID uuid.UUID, endsAt time.Time) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	s, ok := f.w.streams[streamID]
	if !ok {
		return store.ErrNotFound
	}
	s.State = models.StreamStateEnded
	s.EndsAt = &endsAt
	return nil
}

func (f fakeStreamStore) MarkLowBalanceNotified(ctx context.Context, streamID uuid.UUID) error {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	s, ok := f.w.streams[streamID]
	if !ok {
		return store.ErrNotFound
	}
	s.LowBalanceNotified = true
	return nil
}

func (f fakeStreamStore) ListLiveByUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	f.w.mu.Lock()
	defer f.w.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range f.w.streams {
		if s.UserID == userID && s.State == models.StreamStateLive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func newTestOverseer(t *testing.T, w *fakeWorld) *Overseer {
	t.Helper()
	logger := testLogger()
	engine := variant.New(logger, 2)
	return New(Config{NodeName: "node-1", PublicURL: "https://example.com"},
		fakeUserStore{w}, fakeEndpointStore{w}, fakeStreamStore{w}, nil, nil, engine, logger)
}

func TestOverseer_StartStream_HappyPath(t *testing.T) {
	w := newFakeWorld()
	user := &models.User{ID: uuid.New(), StreamKey: "secret-key", BalanceMsat: 10_000_000}
	w.addUser(user)
	w.addEndpoint(&models.IngestEndpoint{ID: "basic", Name: "Basic", CostMsatPerMin: 0, Capabilities: models.PqStringList{"variant:source"}})

	o := newTestOverseer(t, w)
	source := models.SourceMeta{VideoWidth: 1280, VideoHeight: 720, VideoFPS: 30, VideoCodec: "h264"}

	result, err := o.StartStream(context.Background(), "Basic", "secret-key", "127.0.0.1", "rtmp", source)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Config.Variants)

	_, ok := o.Registry().Get(result.StreamID)
	assert.True(t, ok)
	assert.Equal(t, 1, o.Registry().LiveCount())
}

func TestOverseer_StartStream_UnknownEndpoint(t *testing.T) {
	w := newFakeWorld()
	o := newTestOverseer(t, w)

	_, err := o.StartStream(context.Background(), "Missing", "key", "127.0.0.1", "rtmp", models.SourceMeta{})
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestOverseer_StartStream_Blocked(t *testing.T) {
	w := newFakeWorld()
	user := &models.User{ID: uuid.New(), StreamKey: "key", IsBlocked: true}
	w.addUser(user)
	w.addEndpoint(&models.IngestEndpoint{ID: "basic", Name: "Basic", Capabilities: models.PqStringList{"variant:source"}})

	o := newTestOverseer(t, w)
	_, err := o.StartStream(context.Background(), "Basic", "key", "127.0.0.1", "rtmp", models.SourceMeta{})
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestOverseer_StartStream_InsufficientBalance(t *testing.T) {
	w := newFakeWorld()
	user := &models.User{ID: uuid.New(), StreamKey: "key", BalanceMsat: 0}
	w.addUser(user)
	w.addEndpoint(&models.IngestEndpoint{ID: "paid", Name: "Paid", CostMsatPerMin: 1000, Capabilities: models.PqStringList{"variant:source"}})

	o := newTestOverseer(t, w)
	_, err := o.StartStream(context.Background(), "Paid", "key", "127.0.0.1", "rtmp", models.SourceMeta{})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestOverseer_OnSegment_DebitsBalanceAndEndsOnZero(t *testing.T) {
	w := newFakeWorld()
	user := &models.User{ID: uuid.New(), StreamKey: "key", BalanceMsat: 100}
	w.addUser(user)
	w.addEndpoint(&models.IngestEndpoint{ID: "paid", Name: "Paid", CostMsatPerMin: 3000, Capabilities: models.PqStringList{"variant:source"}})

	o := newTestOverseer(t, w)
	result, err := o.StartStream(context.Background(), "Paid", "key", "127.0.0.1", "rtmp", models.SourceMeta{})
	require.NoError(t, err)

	segment := models.SegmentInfo{SequenceNo: 0, DurationSeconds: 2, ContainsIDR: true}
	require.NoError(t, o.OnSegment(context.Background(), result.StreamID, segment, ""))

	handle, ok := o.Registry().Get(result.StreamID)
	require.True(t, ok)
	shouldStop, reason := handle.ShouldStop()
	assert.True(t, shouldStop)
	assert.Equal(t, "balance exhausted", reason)
}

func TestOverseer_EndStream_RemovesFromRegistry(t *testing.T) {
	w := newFakeWorld()
	user := &models.User{ID: uuid.New(), StreamKey: "key", BalanceMsat: 1_000_000}
	w.addUser(user)
	w.addEndpoint(&models.IngestEndpoint{ID: "basic", Name: "Basic", Capabilities: models.PqStringList{"variant:source"}})

	o := newTestOverseer(t, w)
	result, err := o.StartStream(context.Background(), "Basic", "key", "127.0.0.1", "rtmp", models.SourceMeta{})
	require.NoError(t, err)

	require.NoError(t, o.EndStream(context.Background(), result.StreamID, "client disconnect"))
	assert.Equal(t, 0, o.Registry().LiveCount())
}

func TestOverseer_EndStream_SecondCallIsNoOp(t *testing.T) {
	w := newFakeWorld()
	user := &models.User{ID: uuid.New(), StreamKey: "key", BalanceMsat: 1_000_000}
	w.addUser(user)
	w.addEndpoint(&models.IngestEndpoint{ID: "basic", Name: "Basic", Capabilities: models.PqStringList{"variant:source"}})

	o := newTestOverseer(t, w)
	result, err := o.StartStream(context.Background(), "Basic", "key", "127.0.0.1", "rtmp", models.SourceMeta{})
	require.NoError(t, err)

	require.NoError(t, o.EndStream(context.Background(), result.StreamID, "client disconnect"))

	row := w.streams[result.StreamID]
	require.NotNil(t, row)
	firstEndsAt := *row.EndsAt

	require.NoError(t, o.EndStream(context.Background(), result.StreamID, "client disconnect again"))
	assert.Equal(t, 0, o.Registry().LiveCount())
	assert.Equal(t, firstEndsAt, *w.streams[result.StreamID].EndsAt, "ends_at must not be re-stamped on a second EndStream call")
}

func TestOverseer_Blocklist_RequestsStopForBlockedUser(t *testing.T) {
	w := newFakeWorld()
	user := &models.User{ID: uuid.New(), StreamKey: "key", BalanceMsat: 1_000_000}
	w.addUser(user)
	w.addEndpoint(&models.IngestEndpoint{ID: "basic", Name: "Basic", Capabilities: models.PqStringList{"variant:source"}})

	o := newTestOverseer(t, w)
	result, err := o.StartStream(context.Background(), "Basic", "key", "127.0.0.1", "rtmp", models.SourceMeta{})
	require.NoError(t, err)

	userStore := fakeUserStore{w}
	require.NoError(t, userStore.SetBlocked(context.Background(), user.ID, true))
	o.pollBlocklist(context.Background())

	handle, ok := o.Registry().Get(result.StreamID)
	require.True(t, ok)
	shouldStop, reason := handle.ShouldStop()
	assert.True(t, shouldStop)
	assert.Equal(t, "admin block", reason)
}
