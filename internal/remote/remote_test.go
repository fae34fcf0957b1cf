package remote

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// counterSession remembers state between requests like a runtime would.
type counterSession struct {
	n      int
	closed *atomic.Bool
}

func (s *counterSession) Eval(_ context.Context, req Request) Response {
	if req.Source == "throw" {
		return Response{Error: &Error{Name: "TypeError", Message: "boom"}}
	}
	s.n++
	return Response{Value: []byte(strings.Repeat("1", s.n)), Kind: "number"}
}

func (s *counterSession) Close() { s.closed.Store(true) }

func dial(t *testing.T, h *Handler) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		srv.Close()
		t.Fatalf("Dial: %v", err)
	}
	return conn, func() {
		conn.Close(websocket.StatusNormalClosure, "")
		srv.Close()
	}
}

func roundTrip(t *testing.T, conn *websocket.Conn, req Request) Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.Fatalf("Write: %v", err)
	}
	var resp Response
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		t.Fatalf("Read: %v", err)
	}
	return resp
}

func TestHandler_SessionState(t *testing.T) {
	var closed atomic.Bool
	h := NewHandler(func(context.Context) (Session, error) {
		return &counterSession{closed: &closed}, nil
	}, Options{})
	conn, done := dial(t, h)

	first := roundTrip(t, conn, Request{ID: "a", Source: "x"})
	second := roundTrip(t, conn, Request{ID: "b", Source: "x"})
	failed := roundTrip(t, conn, Request{ID: "c", Source: "throw"})

	if first.Session == "" || first.Session != second.Session {
		t.Errorf("session ids %q and %q, want one stable id", first.Session, second.Session)
	}
	want := Response{ID: "b", Value: []byte("11"), Kind: "number"}
	if diff := cmp.Diff(want, second, cmpopts.IgnoreFields(Response{}, "Session")); diff != "" {
		t.Errorf("second response mismatch (-want +got):\n%s", diff)
	}
	if failed.Error == nil || failed.Error.Name != "TypeError" || failed.ID != "c" {
		t.Errorf("failed response = %+v", failed)
	}

	done()
	deadline := time.Now().Add(2 * time.Second)
	for !closed.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !closed.Load() {
		t.Error("session not closed after disconnect")
	}
}

func TestHandler_OpenFailure(t *testing.T) {
	h := NewHandler(func(context.Context) (Session, error) {
		return nil, errors.New("pool exhausted")
	}, Options{})
	conn, done := dial(t, h)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var resp Response
	err := wsjson.Read(ctx, conn, &resp)
	if got := websocket.CloseStatus(err); got != websocket.StatusTryAgainLater {
		t.Errorf("close status = %v (err %v), want StatusTryAgainLater", got, err)
	}
}

func TestHandler_IdleTimeout(t *testing.T) {
	var closed atomic.Bool
	h := NewHandler(func(context.Context) (Session, error) {
		return &counterSession{closed: &closed}, nil
	}, Options{IdleTimeout: 50 * time.Millisecond})
	conn, done := dial(t, h)
	defer done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var resp Response
	if err := wsjson.Read(ctx, conn, &resp); err == nil {
		t.Fatal("read succeeded on an idle session")
	}
}
