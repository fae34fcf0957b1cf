package qjs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cryguy/qjs/internal/remote"
)

// RemoteOptions configures NewRemoteHandler.
type RemoteOptions = remote.Options

// RemoteRequest and RemoteResponse are the JSON messages of the remote
// protocol.
type RemoteRequest = remote.Request
type RemoteResponse = remote.Response
type RemoteError = remote.Error

// NewRemoteHandler serves evaluation sessions over WebSocket. Each
// connection holds one runtime from pool until it disconnects, so globals
// persist between its requests.
func NewRemoteHandler(pool *Pool, opts RemoteOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = pool.cfg.Logger
	}
	return remote.NewHandler(func(ctx context.Context) (remote.Session, error) {
		rt, err := pool.Get(ctx)
		if err != nil {
			return nil, err
		}
		return &remoteSession{pool: pool, rt: rt}, nil
	}, opts)
}

type remoteSession struct {
	pool *Pool
	rt   *Runtime
}

func (s *remoteSession) Eval(ctx context.Context, req remote.Request) remote.Response {
	opts := []EvalOption{}
	if req.Filename != "" {
		opts = append(opts, WithFilename(req.Filename))
	}
	if req.Module {
		opts = append(opts, WithModule())
	}
	v, err := s.rt.EvalContext(ctx, req.Source, opts...)
	if err != nil {
		return remote.Response{Error: remoteError(err)}
	}
	defer v.Free()
	if v.Kind() == KindPromise {
		settled, err := s.rt.Await(ctx, v)
		if err != nil {
			return remote.Response{Error: remoteError(err)}
		}
		defer settled.Free()
		v = settled
	}

	resp := remote.Response{Kind: v.Kind().String()}
	if v.IsUndefined() {
		return resp
	}
	raw, _, err := ValueAs[json.RawMessage](v)
	if err != nil {
		// Functions, symbols and cyclic objects have no JSON form.
		s, serr := v.ToString()
		if serr != nil {
			return remote.Response{Kind: resp.Kind, Error: remoteError(err)}
		}
		raw, _ = json.Marshal(s)
	}
	resp.Value = raw
	return resp
}

func (s *remoteSession) Close() {
	s.pool.Put(s.rt)
}

func remoteError(err error) *remote.Error {
	var jsErr *JSError
	if errors.As(err, &jsErr) {
		return &remote.Error{Name: jsErr.Name, Message: jsErr.Message, Stack: jsErr.Stack}
	}
	return &remote.Error{Name: "Error", Message: err.Error()}
}
