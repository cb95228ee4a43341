package memory

import (
	"context"
	"sync"

	"gym-frontdesk/backend/internal/device/domain"
	"gym-frontdesk/backend/internal/device/repository"
)

// Feed delivers request status changes made through Devices.
type Feed struct{ s *Store }

func (f *Feed) Subscribe(ctx context.Context, requestID int64) (repository.Subscription, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if err := f.s.faultLocked(ctx, OpSubscribe); err != nil {
		return nil, err
	}
	sub := &subscription{
		store:     f.s,
		requestID: requestID,
		changes:   make(chan domain.StatusChange, 4),
	}
	f.s.subs[sub] = struct{}{}
	if ctx.Done() != nil {
		stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
		sub.stop = stop
	}
	return sub, nil
}

// Break ends every open subscription with err (repository.ErrFeedClosed when nil).
func (f *Feed) Break(err error) {
	if err == nil {
		err = repository.ErrFeedClosed
	}
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for sub := range f.s.subs {
		sub.endLocked(err)
	}
}

// Subscribers returns the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return len(f.s.subs)
}

// notifyLocked hands change to matching subscribers. A full subscriber drops the change. s.mu must be held.
func (s *Store) notifyLocked(change domain.StatusChange) {
	for sub := range s.subs {
		if sub.requestID != change.RequestID {
			continue
		}
		select {
		case sub.changes <- change:
		default:
		}
	}
}

type subscription struct {
	store     *Store
	requestID int64
	changes   chan domain.StatusChange
	stop      func() bool

	// guarded by store.mu
	err    error
	closed bool
	once   sync.Once
}

func (s *subscription) Changes() <-chan domain.StatusChange { return s.changes }

func (s *subscription) Err() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.endLocked(nil)
	return nil
}

// endLocked removes the subscription and closes Changes. store.mu must be held.
func (s *subscription) endLocked(err error) {
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	delete(s.store.subs, s)
	close(s.changes)
}
