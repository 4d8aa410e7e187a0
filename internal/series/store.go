// Package series holds the in-memory exchange rate series and fans snapshots out to observers.
//
// The store owns one dispatch goroutine, the foreground context. Replacements are
// handed to it over a channel, and observers are only ever invoked from it, one at a
// time. Observers, Replace and Subscribe must therefore not be called from inside an
// observer callback.
package series

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"ratefeed/internal/model"
)

// ErrClosed is returned by operations on a store that has been torn down.
var ErrClosed = errors.New("series store closed")

// Observer receives read-only snapshots. It must not modify the slice.
type Observer func(entries []model.Entry)

type subscription struct {
	id  uint64
	obs Observer
}

// Store is the single mutable piece of shared state in the pipeline.
type Store struct {
	snapshot atomic.Pointer[[]model.Entry]

	ops  chan func()
	quit chan struct{}
	done chan struct{}
	once sync.Once

	// owned by the dispatch goroutine
	subs   []subscription
	nextID uint64
}

// NewStore seeds the store with initial (typically the persisted cache) and starts dispatching.
func NewStore(initial []model.Entry) *Store {
	s := &Store{
		ops:  make(chan func()),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.swap(initial)
	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.quit:
			return
		case op := <-s.ops:
			select {
			case <-s.quit:
				return
			default:
			}
			op()
		}
	}
}

func (s *Store) swap(entries []model.Entry) []model.Entry {
	snap := slices.Clone(entries)
	if snap == nil {
		snap = []model.Entry{}
	}
	s.snapshot.Store(&snap)
	return snap
}

// run executes fn on the dispatch goroutine and waits for it to finish. ctx only
// bounds the hand-off.
func (s *Store) run(ctx context.Context, fn func()) error {
	ack := make(chan struct{})
	select {
	case s.ops <- func() { fn(); close(ack) }:
	case <-s.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// Once handed off, fn runs unless the store closes first.
	select {
	case <-ack:
		return nil
	case <-s.done:
		select {
		case <-ack:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Replace swaps the whole series and notifies every observer, in subscription order,
// before returning. It is the only mutation entry point.
func (s *Store) Replace(ctx context.Context, entries []model.Entry) error {
	return s.run(ctx, func() {
		snap := s.swap(entries)
		for _, sub := range s.subs {
			sub.obs(snap)
		}
	})
}

// Current returns the latest snapshot without blocking. Never nil.
func (s *Store) Current() []model.Entry {
	return *s.snapshot.Load()
}

// Subscribe registers obs and delivers the current snapshot to it before returning.
// The returned func unregisters the observer; on a closed store it is a no-op.
func (s *Store) Subscribe(obs Observer) (cancel func()) {
	var id uint64
	err := s.run(context.Background(), func() {
		s.nextID++
		id = s.nextID
		s.subs = append(s.subs, subscription{id: id, obs: obs})
		obs(s.Current())
	})
	if err != nil {
		return func() {}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			_ = s.run(context.Background(), func() {
				s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool { return sub.id == id })
			})
		})
	}
}

// Close stops the dispatch goroutine. No observer is invoked after Close returns.
func (s *Store) Close() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
