//go:build !v8

package qjs

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestRemoteHandler(t *testing.T) {
	p := newPool(t, 1, Config{StdHelpers: true})
	srv := httptest.NewServer(NewRemoteHandler(p, RemoteOptions{}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	send := func(req RemoteRequest) RemoteResponse {
		t.Helper()
		if err := wsjson.Write(ctx, conn, req); err != nil {
			t.Fatalf("Write: %v", err)
		}
		var resp RemoteResponse
		if err := wsjson.Read(ctx, conn, &resp); err != nil {
			t.Fatalf("Read: %v", err)
		}
		return resp
	}

	got := []RemoteResponse{
		send(RemoteRequest{ID: "1", Source: "var x = 20"}),
		send(RemoteRequest{ID: "2", Source: "x * 2"}),
		send(RemoteRequest{ID: "3", Source: "({list: [1, 'a'], ok: true})"}),
		send(RemoteRequest{ID: "4", Source: "Promise.resolve('later')"}),
		send(RemoteRequest{ID: "5", Source: "missing"}),
	}
	want := []RemoteResponse{
		{ID: "1", Kind: "undefined"},
		{ID: "2", Kind: "number", Value: []byte(`40`)},
		{ID: "3", Kind: "object", Value: []byte(`{"list":[1,"a"],"ok":true}`)},
		{ID: "4", Kind: "string", Value: []byte(`"later"`)},
		{ID: "5", Error: &RemoteError{Name: "ReferenceError"}},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(RemoteResponse{}, "Session"),
		cmpopts.IgnoreFields(RemoteError{}, "Stack", "Message"),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("responses mismatch (-want +got):\n%s", diff)
	}
	if e := got[4].Error; e == nil || !strings.Contains(e.Message, "is not defined") {
		t.Errorf("response 5 error = %+v, want a not-defined message", e)
	}
	if got[0].Session == "" || got[0].Session != got[4].Session {
		t.Errorf("session ids %q and %q differ", got[0].Session, got[4].Session)
	}
}
