package entity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// messageKind distinguishes the three dispatch kinds the entity runtime
// supports (spec.md §4.2).
type messageKind int

const (
	kindCall messageKind = iota
	kindPersisted
	kindStream
)

type callResult struct {
	value any
	err   error
}

// message is one unit of work enqueued to a mailbox. seq breaks ties
// between messages enqueued in the same instant, per the FIFO contract.
type message struct {
	seq        int64
	kind       messageKind
	primaryKey string
	fn         Handler
	streamFn   StreamFunc
	ctx        context.Context
	reply      chan callResult
	streamOut  chan Event
}

// pendingPersisted tracks an in-flight or completed persisted RPC for
// dedup against a primary key, mirroring the teacher's runningTask
// bookkeeping in internal/actors.ActorPool.
type pendingPersisted struct {
	done    chan struct{}
	result  callResult
	started bool
}

// mailbox is the single goroutine + bounded inbox backing one live entity.
// Messages to the same key are always processed one at a time, in FIFO
// enqueue order, matching the teacher's one-actor-one-task discipline
// generalized from capacity slots to arbitrary entity keys.
type mailbox struct {
	key   Key
	inbox chan message

	mu         sync.Mutex
	pending    map[string]*pendingPersisted
	streaming  map[string]bool
	lastActive time.Time
	stopc      chan struct{}
}

func newMailbox(key Key, capacity int) *mailbox {
	return &mailbox{
		key:        key,
		inbox:      make(chan message, capacity),
		pending:    make(map[string]*pendingPersisted),
		streaming:  make(map[string]bool),
		lastActive: time.Now(),
		stopc:      make(chan struct{}),
	}
}

func (mb *mailbox) run(p *Pool) {
	for {
		select {
		case msg := <-mb.inbox:
			mb.process(p, msg)
		case <-mb.stopc:
			return
		}
	}
}

func (mb *mailbox) process(p *Pool, msg message) {
	mb.mu.Lock()
	mb.lastActive = time.Now()
	mb.mu.Unlock()

	switch msg.kind {
	case kindCall:
		value, err := msg.fn(msg.ctx)
		msg.reply <- callResult{value: value, err: err}

	case kindPersisted:
		p.runPersisted(mb, msg)

	case kindStream:
		p.runStream(mb, msg)
	}
}

var seqCounter int64

func nextSeq() int64 {
	return atomic.AddInt64(&seqCounter, 1)
}
