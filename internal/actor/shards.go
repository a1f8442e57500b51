// Package actor provides single-writer serialization for keyed state.
//
// Each key owns a mailbox goroutine that applies submitted functions one
// at a time in arrival order, so load-mutate-persist sequences against a
// key never interleave and need no locking of their own.
package actor

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("actor shards closed")

const defaultMailboxSize = 64

type call struct {
	fn   func()
	done chan struct{}
}

type shard struct {
	mailbox chan call
}

func (s *shard) run(wg *sync.WaitGroup) {
	defer wg.Done()
	for c := range s.mailbox {
		c.fn()
		close(c.done)
	}
}

// Shards is a map of serialized execution lanes keyed by string.
type Shards struct {
	mu      sync.Mutex
	shards  map[string]*shard
	wg      sync.WaitGroup
	senders sync.WaitGroup
	closed  bool
}

// NewShards returns an empty shard map. Shards are created on first use
// and live until Close.
func NewShards() *Shards {
	return &Shards{shards: make(map[string]*shard)}
}

// Do runs fn on the shard for key, serialized against all other calls
// for the same key. It waits for fn to finish unless ctx is done first;
// a submitted fn still runs to completion even if the caller gives up.
func (s *Shards) Do(ctx context.Context, key string, fn func()) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	sh, ok := s.shards[key]
	if !ok {
		sh = &shard{mailbox: make(chan call, defaultMailboxSize)}
		s.shards[key] = sh
		s.wg.Add(1)
		go sh.run(&s.wg)
	}
	// Registered while holding the mutex, so Close cannot close the
	// mailbox until this send has finished.
	s.senders.Add(1)
	s.mu.Unlock()

	c := call{fn: fn, done: make(chan struct{})}
	select {
	case sh.mailbox <- c:
		s.senders.Done()
	case <-ctx.Done():
		s.senders.Done()
		return ctx.Err()
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains all shards and stops their goroutines. Pending calls
// already in a mailbox still run; in-flight Do sends complete before
// the mailboxes close.
func (s *Shards) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// No new Do can register after closed is set; wait out the ones
	// that already did before closing their target channels.
	s.senders.Wait()

	s.mu.Lock()
	for _, sh := range s.shards {
		close(sh.mailbox)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
