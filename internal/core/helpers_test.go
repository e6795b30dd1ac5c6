package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable clock for services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingStore wraps a MemoryStore and can be told to fail saves.
// afterList, when set, runs after every List with the call number.
type countingStore struct {
	*MemoryStore

	mu        sync.Mutex
	lists     int
	failSave  error
	afterList func(n int)
}

func (s *countingStore) List(ctx context.Context, spec FilterSpec) ([]Record, error) {
	s.mu.Lock()
	s.lists++
	n, hook := s.lists, s.afterList
	s.mu.Unlock()

	records, err := s.MemoryStore.List(ctx, spec)
	if hook != nil {
		hook(n)
	}
	return records, err
}

func (s *countingStore) Save(ctx context.Context, r Record) (Record, error) {
	s.mu.Lock()
	fail := s.failSave
	s.mu.Unlock()
	if fail != nil {
		return Record{}, fail
	}
	return s.MemoryStore.Save(ctx, r)
}

func (s *countingStore) Lists() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func (s *countingStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSave = err
}

var errStoreDown = errors.New("connection refused")

// recordingChannel captures delivered messages.
type recordingChannel struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	Channel   ChannelType
	Msg       RenderedMessage
	Recipient string
}

func (c *recordingChannel) Send(_ context.Context, channel ChannelType, msg RenderedMessage, recipient string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, sentMessage{channel, msg, recipient})
	return nil
}

func (c *recordingChannel) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

type testEnv struct {
	svc     *Service
	store   *countingStore
	clock   *fakeClock
	channel *recordingChannel
}

func newTestEnv(t *testing.T, seed ...Record) *testEnv {
	t.Helper()

	templates, err := NewTemplateRegistry(DefaultTemplates()...)
	require.NoError(t, err)

	env := &testEnv{
		store:   &countingStore{MemoryStore: NewMemoryStore(seed...)},
		clock:   &fakeClock{now: testNow},
		channel: &recordingChannel{},
	}
	dispatcher := NewDispatcher(templates, env.channel, true, time.Second)

	env.svc, err = NewService(env.store, dispatcher, Config{ImportChunkSize: 2}, WithClock(env.clock.Now))
	require.NoError(t, err)
	return env
}

func (e *testEnv) create(t *testing.T, name string) Record {
	t.Helper()
	r, err := e.svc.CreateRecord(context.Background(), CreateRecordRequest{
		Subject:         &Subject{Name: name, Phone: "+2348000000000", State: "Kaduna"},
		AssignedPartner: "partner-1",
	})
	require.NoError(t, err)
	return r
}
