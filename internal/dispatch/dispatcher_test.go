package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oddstream/oddstream-go/internal/order"
	"github.com/oddstream/oddstream-go/internal/rpc"
	"github.com/oddstream/oddstream-go/internal/session"
)

type fakeAuth struct {
	origin string
	err    error
}

func (a fakeAuth) OriginChain() (string, error) { return a.origin, a.err }

type fakeRouter struct {
	routes map[string]string
}

func (r fakeRouter) Resolve(marketID string) string {
	if chain, ok := r.routes[marketID]; ok {
		return chain
	}
	return "derived-" + marketID
}

type fakeSeq struct {
	next    map[string]uint64
	callErr error
}

func (s *fakeSeq) Next(_ context.Context, origin string) (uint64, error) {
	if s.callErr != nil {
		return 0, s.callErr
	}
	if s.next == nil {
		s.next = make(map[string]uint64)
	}
	n := s.next[origin]
	s.next[origin] = n + 1
	return n, nil
}

type fakeSender struct {
	requests []rpc.DispatchRequest
	failDest string
}

func (s *fakeSender) Dispatch(_ context.Context, req rpc.DispatchRequest) (string, error) {
	if req.DestinationChainID == s.failDest {
		return "", errors.New("chain unreachable")
	}
	s.requests = append(s.requests, req)
	return fmt.Sprintf("tx-%d", len(s.requests)), nil
}

func newTestDispatcher(auth Authorizer, sender *fakeSender, cfg Config) *Dispatcher {
	router := fakeRouter{routes: map[string]string{"M1": "C1", "M2": "C2", "M3": "C3"}}
	d := New(auth, router, &fakeSeq{}, sender, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return d
}

func orderFor(marketID string) order.Order {
	return order.Order{MarketID: marketID, Side: order.SideYes, Amount: decimal.NewFromInt(100)}
}

func TestSubmitPartitionsPerDestination(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(fakeAuth{origin: "user-chain"}, sender, Config{FailFast: true})

	orders := []order.Order{
		orderFor("M1"), orderFor("M1"), orderFor("M1"),
		orderFor("M2"), orderFor("M2"),
	}

	result, err := d.Submit(context.Background(), orders, "")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if result.TotalOrders != 5 {
		t.Errorf("total orders = %d, want 5", result.TotalOrders)
	}
	if len(result.TransactionIDs) != 2 {
		t.Errorf("transaction ids = %v, want 2", result.TransactionIDs)
	}
	if len(sender.requests) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.requests))
	}

	// First-seen destination order.
	if sender.requests[0].DestinationChainID != "C1" || sender.requests[1].DestinationChainID != "C2" {
		t.Errorf("destinations = %s, %s", sender.requests[0].DestinationChainID, sender.requests[1].DestinationChainID)
	}
	if len(sender.requests[0].Message.Orders) != 3 || len(sender.requests[1].Message.Orders) != 2 {
		t.Errorf("group sizes = %d, %d", len(sender.requests[0].Message.Orders), len(sender.requests[1].Message.Orders))
	}

	// Distinct nonces per group.
	if sender.requests[0].Message.Nonce == sender.requests[1].Message.Nonce {
		t.Errorf("groups share nonce %d", sender.requests[0].Message.Nonce)
	}

	for _, req := range sender.requests {
		if req.OriginChainID != "user-chain" || req.Message.UserChainID != "user-chain" {
			t.Errorf("origin not carried: %+v", req)
		}
		if req.Message.Type != rpc.BatchMessageType {
			t.Errorf("message type = %q", req.Message.Type)
		}
		for _, o := range req.Message.Orders {
			if o.ClientID == "" {
				t.Error("order left without client id")
			}
			if o.Status != order.StatusPending {
				t.Errorf("order status = %q", o.Status)
			}
			if o.SubmittedAt.IsZero() {
				t.Error("order missing submission timestamp")
			}
		}
	}
}

func TestSubmitUnauthenticated(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(fakeAuth{err: session.ErrUnauthenticated}, sender, Config{FailFast: true})

	_, err := d.Submit(context.Background(), []order.Order{orderFor("M1")}, "")
	if !errors.Is(err, session.ErrUnauthenticated) {
		t.Fatalf("error = %v, want ErrUnauthenticated", err)
	}
	if len(sender.requests) != 0 {
		t.Error("network call made without a session")
	}
}

func TestSubmitMissingOriginChain(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(fakeAuth{origin: ""}, sender, Config{FailFast: true})

	_, err := d.Submit(context.Background(), []order.Order{orderFor("M1")}, "")
	if !errors.Is(err, ErrMissingOriginChain) {
		t.Fatalf("error = %v, want ErrMissingOriginChain", err)
	}
}

func TestSubmitExplicitOriginWins(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(fakeAuth{origin: "session-chain"}, sender, Config{FailFast: true})

	_, err := d.Submit(context.Background(), []order.Order{orderFor("M1")}, "explicit-chain")
	if err != nil {
		t.Fatal(err)
	}
	if sender.requests[0].OriginChainID != "explicit-chain" {
		t.Errorf("origin = %q", sender.requests[0].OriginChainID)
	}
}

func TestSubmitFailFastAbortsRemainingGroups(t *testing.T) {
	sender := &fakeSender{failDest: "C2"}
	d := newTestDispatcher(fakeAuth{origin: "user-chain"}, sender, Config{FailFast: true})

	orders := []order.Order{orderFor("M1"), orderFor("M2"), orderFor("M3")}

	result, err := d.Submit(context.Background(), orders, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if result != nil {
		t.Errorf("fail-fast must not return a partial result, got %+v", result)
	}
	// C1 went out, C2 failed, C3 never attempted.
	if len(sender.requests) != 1 || sender.requests[0].DestinationChainID != "C1" {
		t.Errorf("requests = %+v", sender.requests)
	}
}

func TestSubmitPerGroupOutcomes(t *testing.T) {
	sender := &fakeSender{failDest: "C2"}
	d := newTestDispatcher(fakeAuth{origin: "user-chain"}, sender, Config{FailFast: false})

	orders := []order.Order{orderFor("M1"), orderFor("M2"), orderFor("M3")}

	result, err := d.Submit(context.Background(), orders, "")
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if result == nil {
		t.Fatal("per-group mode must still return the result")
	}

	if len(result.Groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(result.Groups))
	}
	if !result.Groups[0].Dispatched || result.Groups[0].Err != nil {
		t.Errorf("group C1 = %+v", result.Groups[0])
	}
	if result.Groups[1].Dispatched || result.Groups[1].Err == nil {
		t.Errorf("group C2 = %+v", result.Groups[1])
	}
	if !result.Groups[2].Dispatched {
		t.Errorf("group C3 should still be attempted: %+v", result.Groups[2])
	}
	if len(result.TransactionIDs) != 2 {
		t.Errorf("transaction ids = %v", result.TransactionIDs)
	}
}

func TestSubmitSequencerErrorFailFast(t *testing.T) {
	sender := &fakeSender{}
	router := fakeRouter{routes: map[string]string{"M1": "C1"}}
	seq := &fakeSeq{callErr: errors.New("nonce service down")}
	d := New(fakeAuth{origin: "user-chain"}, router, seq, sender, Config{FailFast: true},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := d.Submit(context.Background(), []order.Order{orderFor("M1")}, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(sender.requests) != 0 {
		t.Error("group sent without a nonce")
	}
}

func TestSubmitKeepsExistingClientID(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(fakeAuth{origin: "user-chain"}, sender, Config{FailFast: true})

	o := orderFor("M1")
	o.ClientID = "resubmitted-1"

	if _, err := d.Submit(context.Background(), []order.Order{o}, ""); err != nil {
		t.Fatal(err)
	}
	if got := sender.requests[0].Message.Orders[0].ClientID; got != "resubmitted-1" {
		t.Errorf("client id = %q", got)
	}
}

func TestSubmitUnknownMarketUsesFallbackRoute(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(fakeAuth{origin: "user-chain"}, sender, Config{FailFast: true})

	if _, err := d.Submit(context.Background(), []order.Order{orderFor("MX")}, ""); err != nil {
		t.Fatal(err)
	}
	if got := sender.requests[0].DestinationChainID; got != "derived-MX" {
		t.Errorf("destination = %q", got)
	}
}

func TestSubmitEmptyOrders(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(fakeAuth{origin: "user-chain"}, sender, Config{FailFast: true})

	result, err := d.Submit(context.Background(), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalOrders != 0 || len(sender.requests) != 0 {
		t.Errorf("empty submit did work: %+v", result)
	}
}
