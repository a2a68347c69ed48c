package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/agentrt/internal/storage"
)

const (
	defaultMailboxCapacity = 64
	defaultIdleTimeout     = 5 * time.Minute
	persistedActivityName  = "rpc"
)

// Pool owns every live entity's mailbox, starting one lazily on first
// dispatch and reaping it after it has been idle past idleTimeout. It
// generalizes internal/actors.ActorPool's fixed-slot scheduling to an
// arbitrary-keyed entity model.
type Pool struct {
	mu              sync.Mutex
	mailboxes       map[Key]*mailbox
	journal         storage.WorkflowJournalPort
	mailboxCapacity int
	idleTimeout     time.Duration

	reapCtx    context.Context
	reapCancel context.CancelFunc
	reapWG     sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithMailboxCapacity overrides the default bounded inbox size.
func WithMailboxCapacity(n int) Option {
	return func(p *Pool) { p.mailboxCapacity = n }
}

// WithIdleTimeout overrides how long an idle mailbox survives before reaping.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *Pool) { p.idleTimeout = d }
}

// NewPool creates a Pool backed by journal for durable persisted-RPC dedup.
func NewPool(journal storage.WorkflowJournalPort, opts ...Option) *Pool {
	p := &Pool{
		mailboxes:       make(map[Key]*mailbox),
		journal:         journal,
		mailboxCapacity: defaultMailboxCapacity,
		idleTimeout:     defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.reapCtx, p.reapCancel = context.WithCancel(context.Background())
	p.reapWG.Add(1)
	go p.reapLoop()
	return p
}

// Stop halts the idle-reaper and every live mailbox. In-flight calls are
// not cancelled; callers should drain them first.
func (p *Pool) Stop() {
	p.reapCancel()
	p.reapWG.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	for key, mb := range p.mailboxes {
		close(mb.stopc)
		delete(p.mailboxes, key)
	}
}

func (p *Pool) reapLoop() {
	defer p.reapWG.Done()
	ticker := time.NewTicker(p.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-p.reapCtx.Done():
			return
		case <-ticker.C:
			p.reapIdle()
		}
	}
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for key, mb := range p.mailboxes {
		mb.mu.Lock()
		idle := now.Sub(mb.lastActive) > p.idleTimeout && len(mb.pending) == 0 && len(mb.streaming) == 0
		mb.mu.Unlock()
		if idle {
			close(mb.stopc)
			delete(p.mailboxes, key)
			slog.Debug("entity: reaped idle mailbox", "key", key.String())
		}
	}
}

func (p *Pool) mailboxFor(key Key) *mailbox {
	p.mu.Lock()
	defer p.mu.Unlock()
	mb, ok := p.mailboxes[key]
	if !ok {
		mb = newMailbox(key, p.mailboxCapacity)
		p.mailboxes[key] = mb
		go mb.run(p)
	}
	return mb
}

// Call dispatches a non-persisted RPC: the handler runs at most once per
// call and its reply (or error) is returned to this caller only.
func (p *Pool) Call(ctx context.Context, key Key, fn Handler) (any, error) {
	mb := p.mailboxFor(key)
	reply := make(chan callResult, 1)
	msg := message{seq: nextSeq(), kind: kindCall, fn: fn, ctx: ctx, reply: reply}

	select {
	case mb.inbox <- msg:
	default:
		return nil, &MailboxFull{Key: key}
	}

	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CallPersisted dispatches a persisted RPC keyed by primaryKey. A second
// call with the same (key, primaryKey) — whether concurrent or after a
// process restart — returns the first call's reply without re-running fn.
func (p *Pool) CallPersisted(ctx context.Context, key Key, primaryKey string, fn Handler) (any, error) {
	mb := p.mailboxFor(key)

	mb.mu.Lock()
	if existing, ok := mb.pending[primaryKey]; ok {
		mb.mu.Unlock()
		<-existing.done
		return existing.result.value, existing.result.err
	}
	entry := &pendingPersisted{done: make(chan struct{})}
	mb.pending[primaryKey] = entry
	mb.mu.Unlock()

	reply := make(chan callResult, 1)
	msg := message{seq: nextSeq(), kind: kindPersisted, primaryKey: primaryKey, fn: fn, ctx: ctx, reply: reply}

	select {
	case mb.inbox <- msg:
	default:
		mb.mu.Lock()
		delete(mb.pending, primaryKey)
		mb.mu.Unlock()
		close(entry.done)
		return nil, &MailboxFull{Key: key}
	}

	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runPersisted executes msg.fn for a persisted RPC, consulting the durable
// journal first so the handler runs at most once even across a process
// restart, and notifies any callers waiting on the in-memory entry.
func (p *Pool) runPersisted(mb *mailbox, msg message) {
	entryKey := mb.key.String()

	if prior, err := p.journal.LookupActivity(msg.ctx, entryKey, persistedActivityName, msg.primaryKey); err == nil && prior != nil {
		res := decodeJournaled(*prior)
		p.finishPersisted(mb, msg, res)
		return
	}

	value, err := msg.fn(msg.ctx)
	res := callResult{value: value, err: err}

	if journalErr := p.journal.RecordActivity(msg.ctx, encodeJournaled(entryKey, msg.primaryKey, res)); journalErr != nil {
		slog.Error("entity: record persisted rpc", "key", entryKey, "primary_key", msg.primaryKey, "error", journalErr)
	}

	p.finishPersisted(mb, msg, res)
}

func (p *Pool) finishPersisted(mb *mailbox, msg message, res callResult) {
	mb.mu.Lock()
	entry, ok := mb.pending[msg.primaryKey]
	if ok {
		entry.result = res
		close(entry.done)
	}
	mb.mu.Unlock()
	msg.reply <- res
}

// Stream dispatches a streaming RPC and returns a channel the caller drains
// until closed or ctx is cancelled. The mailbox does not process the next
// message until the stream handler's channel closes.
func (p *Pool) Stream(ctx context.Context, key Key, primaryKey string, fn StreamFunc) (<-chan Event, error) {
	mb := p.mailboxFor(key)

	if primaryKey != "" {
		mb.mu.Lock()
		if mb.streaming[primaryKey] {
			mb.mu.Unlock()
			return nil, &AlreadyProcessingMessage{Key: key, PrimaryKey: primaryKey}
		}
		mb.streaming[primaryKey] = true
		mb.mu.Unlock()
	}

	out := make(chan Event, 16)
	msg := message{seq: nextSeq(), kind: kindStream, primaryKey: primaryKey, streamFn: fn, ctx: ctx, streamOut: out}

	select {
	case mb.inbox <- msg:
	default:
		if primaryKey != "" {
			mb.mu.Lock()
			delete(mb.streaming, primaryKey)
			mb.mu.Unlock()
		}
		return nil, &MailboxFull{Key: key}
	}
	return out, nil
}

func (p *Pool) runStream(mb *mailbox, msg message) {
	defer func() {
		if msg.primaryKey != "" {
			mb.mu.Lock()
			delete(mb.streaming, msg.primaryKey)
			mb.mu.Unlock()
		}
		close(msg.streamOut)
	}()

	upstream, err := msg.streamFn(msg.ctx)
	if err != nil {
		msg.streamOut <- Event{Sequence: FailureSequence, Name: "stream.failed", Payload: err.Error()}
		return
	}

	for {
		select {
		case ev, ok := <-upstream:
			if !ok {
				return
			}
			select {
			case msg.streamOut <- ev:
			case <-msg.ctx.Done():
				return
			}
		case <-msg.ctx.Done():
			return
		}
	}
}

func encodeJournaled(executionID, primaryKey string, res callResult) storage.JournalEntry {
	entry := storage.JournalEntry{
		ExecutionID:    executionID,
		ActivityName:   persistedActivityName,
		IdempotencyKey: primaryKey,
		Status:         storage.JournalComplete,
	}
	if res.err != nil {
		entry.Status = storage.JournalFailed
		entry.SerializedError = res.err.Error()
		return entry
	}
	raw, err := json.Marshal(res.value)
	if err != nil {
		entry.Status = storage.JournalFailed
		entry.SerializedError = fmt.Sprintf("marshal persisted rpc result: %v", err)
		return entry
	}
	entry.SerializedResult = string(raw)
	return entry
}

func decodeJournaled(entry storage.JournalEntry) callResult {
	if entry.Status == storage.JournalFailed {
		return callResult{err: fmt.Errorf("%s", entry.SerializedError)}
	}
	var value any
	if entry.SerializedResult != "" {
		if err := json.Unmarshal([]byte(entry.SerializedResult), &value); err != nil {
			return callResult{err: fmt.Errorf("decode journaled persisted rpc result: %w", err)}
		}
	}
	return callResult{value: value}
}
