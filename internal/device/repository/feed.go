package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"

	"gym-frontdesk/backend/internal/device/domain"
)

// StatusChannel is the LISTEN/NOTIFY channel written by the device request status trigger.
const StatusChannel = "device_request_status"

// PostgresFeed subscribes to device request status changes with LISTEN on a dedicated connection.
type PostgresFeed struct {
	dsn string
}

// NewPostgresFeed returns a feed that opens one connection per subscription to dsn.
func NewPostgresFeed(dsn string) *PostgresFeed {
	return &PostgresFeed{dsn: dsn}
}

// Subscribe connects, issues LISTEN and starts delivering changes for requestID.
// The subscription ends when ctx is cancelled, Close is called or the connection fails.
func (f *PostgresFeed) Subscribe(ctx context.Context, requestID int64) (Subscription, error) {
	conn, err := pgx.Connect(ctx, f.dsn)
	if err != nil {
		return nil, fmt.Errorf("feed connect: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+StatusChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("feed listen: %w", err)
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &pgSubscription{
		requestID: requestID,
		conn:      conn,
		cancel:    cancel,
		changes:   make(chan domain.StatusChange, 1),
		done:      make(chan struct{}),
	}
	go s.run(subCtx)
	return s, nil
}

type pgSubscription struct {
	requestID int64
	conn      *pgx.Conn
	cancel    context.CancelFunc
	changes   chan domain.StatusChange
	done      chan struct{}

	mu  sync.Mutex
	err error
}

func (s *pgSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.changes)
	defer func() { _ = s.conn.Close(context.Background()) }()
	for {
		n, err := s.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.setErr(fmt.Errorf("feed wait: %w", err))
			}
			return
		}
		var change domain.StatusChange
		if err := json.Unmarshal([]byte(n.Payload), &change); err != nil {
			log.Printf("device: feed: bad payload %q: %v", n.Payload, err)
			continue
		}
		if change.RequestID != s.requestID {
			continue
		}
		select {
		case s.changes <- change:
		case <-ctx.Done():
			return
		}
	}
}

func (s *pgSubscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *pgSubscription) Changes() <-chan domain.StatusChange { return s.changes }

func (s *pgSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the listener and waits for the connection to be released. Safe to call more than once.
func (s *pgSubscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

var _ Feed = (*PostgresFeed)(nil)

// ErrFeedClosed is reported by subscriptions whose underlying feed was shut down.
var ErrFeedClosed = errors.New("change feed closed")
