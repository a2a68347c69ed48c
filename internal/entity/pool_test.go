package entity

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/agentrt/internal/storage"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "entity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewPool(db, WithIdleTimeout(50*time.Millisecond))
	t.Cleanup(p.Stop)
	return p
}

func TestCall_RunsHandlerAndReturnsReply(t *testing.T) {
	p := newTestPool(t)
	key := Key{Type: "session", ID: "s1"}

	value, err := p.Call(context.Background(), key, func(ctx context.Context) (any, error) {
		return "pong", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", value)
}

func TestCall_SerializesHandlersForSameKey(t *testing.T) {
	p := newTestPool(t)
	key := Key{Type: "session", ID: "s1"}

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Call(context.Background(), key, func(ctx context.Context) (any, error) {
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
			require.NoError(t, err)
		}()
		time.Sleep(time.Millisecond) // bias enqueue order
	}
	wg.Wait()

	require.Len(t, order, 5)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order, "messages to the same entity key must be observed in enqueue order")
}

func TestCallPersisted_RunsHandlerAtMostOnce(t *testing.T) {
	p := newTestPool(t)
	key := Key{Type: "channel", ID: "c1"}

	var calls int32
	fn := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return "created", nil
	}

	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.CallPersisted(context.Background(), key, "create:agent-1", fn)
			require.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a persisted RPC's handler must run at most once per primary key")
	for _, r := range results {
		assert.Equal(t, "created", r)
	}
}

func TestCallPersisted_SurvivesPoolRestartViaDurableJournal(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "entity.db")
	db, err := storage.Open(ctx, dbPath)
	require.NoError(t, err)

	key := Key{Type: "channel", ID: "c1"}
	var calls int32
	fn := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "created", nil
	}

	p1 := NewPool(db)
	_, err = p1.CallPersisted(ctx, key, "create:agent-1", fn)
	require.NoError(t, err)
	p1.Stop()
	db.Close()

	// Reopen against the same file: a fresh Pool has no in-memory record of
	// this primary key, but the durable journal does.
	db2, err := storage.Open(ctx, dbPath)
	require.NoError(t, err)
	defer db2.Close()

	p2 := NewPool(db2)
	defer p2.Stop()

	value, err := p2.CallPersisted(ctx, key, "create:agent-1", fn)
	require.NoError(t, err)
	assert.Equal(t, "created", value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "replaying a persisted rpc after restart must not re-run the handler")
}

func TestStream_RelaysEventsInOrder(t *testing.T) {
	p := newTestPool(t)
	key := Key{Type: "session", ID: "s1"}

	out, err := p.Stream(context.Background(), key, "", func(ctx context.Context) (<-chan Event, error) {
		ch := make(chan Event, 3)
		go func() {
			defer close(ch)
			ch <- Event{Sequence: 1, Name: "turn.started"}
			ch <- Event{Sequence: 2, Name: "assistant.delta", Payload: "hi"}
			ch <- Event{Sequence: 3, Name: "turn.completed"}
		}()
		return ch, nil
	})
	require.NoError(t, err)

	var got []Event
	for ev := range out {
		got = append(got, ev)
	}
	require.Len(t, got, 3)
	assert.Equal(t, "turn.started", got[0].Name)
	assert.Equal(t, "turn.completed", got[2].Name)
}

func TestStream_DuplicatePrimaryKeyWhileInFlightErrors(t *testing.T) {
	p := newTestPool(t)
	key := Key{Type: "channel", ID: "c1"}

	release := make(chan struct{})
	_, err := p.Stream(context.Background(), key, "send:turn-1", func(ctx context.Context) (<-chan Event, error) {
		ch := make(chan Event)
		go func() {
			<-release
			close(ch)
		}()
		return ch, nil
	})
	require.NoError(t, err)

	// Give the mailbox goroutine a chance to start the first stream.
	time.Sleep(10 * time.Millisecond)

	_, err = p.Stream(context.Background(), key, "send:turn-1", func(ctx context.Context) (<-chan Event, error) {
		return nil, fmt.Errorf("should not run")
	})
	require.Error(t, err)
	var already *AlreadyProcessingMessage
	require.ErrorAs(t, err, &already)

	close(release)
}

func TestMailboxFull_WhenInboxSaturated(t *testing.T) {
	p := NewPool(nil, WithMailboxCapacity(1))
	defer p.Stop()
	key := Key{Type: "session", ID: "s1"}

	block := make(chan struct{})
	go func() {
		_, _ = p.Call(context.Background(), key, func(ctx context.Context) (any, error) {
			<-block
			return nil, nil
		})
	}()
	time.Sleep(5 * time.Millisecond) // let the handler start running, freeing the inbox slot

	// Fill the now-empty single-slot inbox with a message that can't be
	// dequeued until the in-flight handler above returns.
	go func() {
		_, _ = p.Call(context.Background(), key, func(ctx context.Context) (any, error) { return nil, nil })
	}()
	time.Sleep(5 * time.Millisecond)

	_, err := p.Call(context.Background(), key, func(ctx context.Context) (any, error) { return nil, nil })
	require.Error(t, err)
	var full *MailboxFull
	require.ErrorAs(t, err, &full)

	close(block)
}
