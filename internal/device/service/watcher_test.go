package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gym-frontdesk/backend/internal/device/domain"
	"gym-frontdesk/backend/internal/store/memory"
)

type fakeHandler struct {
	mu             sync.Mutex
	reestablished  int
	denied         []int64
	reestablishErr error
}

func (f *fakeHandler) Reestablish(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reestablished++
	return f.reestablishErr
}

func (f *fakeHandler) MarkDenied(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.denied = append(f.denied, id)
}

func pendingRequest(t *testing.T, s *memory.Store) *domain.AuthorizationRequest {
	t.Helper()
	ctx := context.Background()
	id, _, err := s.Devices().CreateOrReusePending(ctx, "cashier", "fp", "", time.Minute)
	if err != nil {
		t.Fatalf("CreateOrReusePending: %v", err)
	}
	req, _ := s.Devices().GetRequest(ctx, id)
	return req
}

type watchResult struct {
	outcome Outcome
	err     error
}

func startWatch(w *Watcher, ctx context.Context, id int64, h ApprovalHandler) <-chan watchResult {
	out := make(chan watchResult, 1)
	go func() {
		o, err := w.Watch(ctx, id, h)
		out <- watchResult{o, err}
	}()
	return out
}

func waitSubscribed(t *testing.T, s *memory.Store) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Feed().Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never subscribed")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func awaitResult(t *testing.T, ch <-chan watchResult) watchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return")
		return watchResult{}
	}
}

func TestWatch_ApprovedReestablishes(t *testing.T) {
	s := memory.New()
	req := pendingRequest(t, s)
	h := &fakeHandler{}
	w := NewWatcher(s.Feed(), s.Devices())

	res := startWatch(w, context.Background(), req.ID, h)
	waitSubscribed(t, s)
	if ok, _ := s.Devices().Approve(context.Background(), req, "admin", ""); !ok {
		t.Fatal("Approve returned false")
	}

	r := awaitResult(t, res)
	if r.err != nil || r.outcome != OutcomeApproved {
		t.Fatalf("Watch = %s, %v; want approved", r.outcome, r.err)
	}
	if h.reestablished != 1 {
		t.Errorf("Reestablish calls = %d, want 1", h.reestablished)
	}
	if n := s.Feed().Subscribers(); n != 0 {
		t.Errorf("subscriptions left open: %d", n)
	}
}

func TestWatch_DeniedMarksDenied(t *testing.T) {
	s := memory.New()
	req := pendingRequest(t, s)
	h := &fakeHandler{}
	w := NewWatcher(s.Feed(), s.Devices())

	res := startWatch(w, context.Background(), req.ID, h)
	waitSubscribed(t, s)
	_, _ = s.Devices().Deny(context.Background(), req.ID, "admin", "unknown laptop")

	r := awaitResult(t, res)
	if r.err != nil || r.outcome != OutcomeDenied {
		t.Fatalf("Watch = %s, %v; want denied", r.outcome, r.err)
	}
	if len(h.denied) != 1 || h.denied[0] != req.ID || h.reestablished != 0 {
		t.Fatalf("handler = %+v, want one MarkDenied(%d)", h, req.ID)
	}
}

func TestWatch_AlreadyResolved(t *testing.T) {
	s := memory.New()
	req := pendingRequest(t, s)
	_, _ = s.Devices().Approve(context.Background(), req, "admin", "")
	h := &fakeHandler{}

	o, err := NewWatcher(s.Feed(), s.Devices()).Watch(context.Background(), req.ID, h)
	if err != nil || o != OutcomeApproved || h.reestablished != 1 {
		t.Fatalf("Watch = %s, %v (reestablished %d); want approved once", o, err, h.reestablished)
	}
}

func TestWatch_FeedFailure(t *testing.T) {
	s := memory.New()
	req := pendingRequest(t, s)
	h := &fakeHandler{}
	w := NewWatcher(s.Feed(), s.Devices())

	res := startWatch(w, context.Background(), req.ID, h)
	waitSubscribed(t, s)
	s.Feed().Break(nil)

	r := awaitResult(t, res)
	if !errors.Is(r.err, ErrApprovalChannel) || r.outcome != OutcomeUnresolved {
		t.Fatalf("Watch = %s, %v; want ErrApprovalChannel", r.outcome, r.err)
	}
	if got, _ := s.Devices().GetRequest(context.Background(), req.ID); got.Status != domain.StatusPending {
		t.Errorf("request status = %s, want still pending", got.Status)
	}
}

func TestWatch_SubscribeAndSnapshotErrors(t *testing.T) {
	s := memory.New()
	req := pendingRequest(t, s)
	w := NewWatcher(s.Feed(), s.Devices())

	s.Fail(memory.OpSubscribe, errors.New("listen failed"))
	if _, err := w.Watch(context.Background(), req.ID, &fakeHandler{}); !errors.Is(err, ErrApprovalChannel) {
		t.Fatalf("subscribe failure err = %v, want ErrApprovalChannel", err)
	}
	s.Fail(memory.OpSubscribe, nil)

	s.Fail(memory.OpGetRequest, errors.New("read failed"))
	if _, err := w.Watch(context.Background(), req.ID, &fakeHandler{}); !errors.Is(err, ErrApprovalChannel) {
		t.Fatalf("snapshot failure err = %v, want ErrApprovalChannel", err)
	}
	s.Fail(memory.OpGetRequest, nil)
	if n := s.Feed().Subscribers(); n != 0 {
		t.Errorf("subscriptions left open: %d", n)
	}

	if _, err := w.Watch(context.Background(), 999, &fakeHandler{}); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Fatalf("missing request err = %v, want ErrRequestNotFound", err)
	}
}

func TestWatch_Cancelled(t *testing.T) {
	s := memory.New()
	req := pendingRequest(t, s)
	ctx, cancel := context.WithCancel(context.Background())

	res := startWatch(NewWatcher(s.Feed(), s.Devices()), ctx, req.ID, &fakeHandler{})
	waitSubscribed(t, s)
	cancel()

	r := awaitResult(t, res)
	if !errors.Is(r.err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", r.err)
	}
}
