package chathub_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"marketchat/backend/internal/chathub"
	"marketchat/backend/internal/models"
	"marketchat/backend/internal/objectstore"
	"marketchat/backend/internal/storage"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient is an in-memory chathub.Client that records what it is sent.
type MockClient struct {
	connID string
	userID string

	events    chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

var connSeq struct {
	sync.Mutex
	n int
}

func newMockClient(userID string) *MockClient {
	connSeq.Lock()
	connSeq.n++
	id := fmt.Sprintf("%s-%d", chathub.NewConnID(time.Now()), connSeq.n)
	connSeq.Unlock()
	return &MockClient{
		connID: id,
		userID: userID,
		events: make(chan models.Event, 128),
		done:   make(chan struct{}),
	}
}

func (c *MockClient) GetConnID() string     { return c.connID }
func (c *MockClient) GetUserID() string     { return c.userID }
func (c *MockClient) Done() <-chan struct{} { return c.done }
func (c *MockClient) Run()                  {}

func (c *MockClient) Send(ev models.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

func (c *MockClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// drain returns every event queued so far.
func (c *MockClient) drain() []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-c.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// ofType returns the queued events of the given type, discarding the rest.
func (c *MockClient) ofType(eventType string) []models.Event {
	var out []models.Event
	for _, ev := range c.drain() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func payload[T any](t *testing.T, ev models.Event) T {
	t.Helper()
	var p T
	require.NoError(t, json.Unmarshal(ev.Payload, &p))
	return p
}

func event(t *testing.T, eventType, correlationID string, p any) models.Event {
	t.Helper()
	ev, err := models.NewEvent(eventType, p)
	require.NoError(t, err)
	ev.CorrelationID = correlationID
	return ev
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestHub(t *testing.T, st storage.Storage, opts ...func(*chathub.Deps)) *chathub.ManagerService {
	t.Helper()
	d := chathub.Deps{
		Storage: st,
		Log:     discardLogger(),
		Now:     func() time.Time { return fixedNow },
	}
	for _, o := range opts {
		o(&d)
	}
	return chathub.NewManagerService(d)
}

// connect attaches a fresh client for userID and drops its seed events.
func connect(hub *chathub.ManagerService, userID string) *MockClient {
	c := newMockClient(userID)
	hub.Connect(c)
	c.drain()
	return c
}

// MockStorage is a testify mock of storage.Storage used to inject failures.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) CreateMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *MockStorage) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) MarkMessageRead(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorage) ListConversation(ctx context.Context, a, b string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, a, b, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) CreateComment(ctx context.Context, c *models.Comment) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockStorage) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

func (m *MockStorage) DeleteComment(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStorage) ListComments(ctx context.Context, productID string) ([]models.Comment, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *MockStorage) GetReactions(ctx context.Context, target models.ReactionTarget) (models.ReactionSet, error) {
	args := m.Called(ctx, target)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(models.ReactionSet), args.Error(1)
}

func (m *MockStorage) SetReactions(ctx context.Context, target models.ReactionTarget, set models.ReactionSet) error {
	return m.Called(ctx, target, set).Error(0)
}

func (m *MockStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockStorage) SaveUser(ctx context.Context, u *models.User) error {
	return m.Called(ctx, u).Error(0)
}

// MockObjectStore is a testify mock of objectstore.ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Upload(ctx context.Context, obj objectstore.Object) (string, error) {
	args := m.Called(ctx, obj)
	return args.String(0), args.Error(1)
}

// MockNotifier records offline notifications on a channel.
type MockNotifier struct {
	mock.Mock
	calls chan models.Message
}

func newMockNotifier() *MockNotifier {
	return &MockNotifier{calls: make(chan models.Message, 8)}
}

func (m *MockNotifier) NotifyOffline(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	m.calls <- msg
	return args.Error(0)
}

// MockRelay is an in-process chathub.Relay shared by several hubs.
type MockRelay struct {
	mu       sync.Mutex
	handlers []func(chathub.RelayEnvelope)
	ready    chan struct{}
}

func newMockRelay() *MockRelay {
	return &MockRelay{ready: make(chan struct{}, 16)}
}

func (r *MockRelay) Publish(ctx context.Context, env chathub.RelayEnvelope) error {
	data, err := chathub.EncodeRelayEnvelope(env)
	if err != nil {
		return err
	}
	decoded, err := chathub.DecodeRelayEnvelope(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	handlers := append([]func(chathub.RelayEnvelope){}, r.handlers...)
	r.mu.Unlock()
	for _, h := range handlers {
		h(decoded)
	}
	return nil
}

func (r *MockRelay) Subscribe(ctx context.Context, handle func(chathub.RelayEnvelope)) error {
	r.mu.Lock()
	r.handlers = append(r.handlers, handle)
	r.mu.Unlock()
	r.ready <- struct{}{}
	<-ctx.Done()
	return nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
