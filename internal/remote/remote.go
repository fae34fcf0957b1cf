// Package remote serves evaluation sessions over WebSocket. Each
// connection owns one session whose global state persists across
// requests until the connection closes.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultMaxMessageBytes = 1 << 20
	defaultIdleTimeout     = 5 * time.Minute
	writeTimeout           = 10 * time.Second
)

// Request asks a session to evaluate source.
type Request struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Filename string `json:"filename,omitempty"`
	Module   bool   `json:"module,omitempty"`
}

// Response carries the result of one Request. Value is the JSON form of
// the completion value and is absent for undefined.
type Response struct {
	ID      string          `json:"id"`
	Session string          `json:"session"`
	Value   json.RawMessage `json:"value,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error describes a failed evaluation.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Session evaluates requests for one connection.
type Session interface {
	Eval(ctx context.Context, req Request) Response
	Close()
}

// Opener starts a session for a new connection.
type Opener func(ctx context.Context) (Session, error)

// Options configures a Handler. The zero value is usable.
type Options struct {
	MaxMessageBytes int64         // largest accepted request, default 1 MiB
	IdleTimeout     time.Duration // close after this long without a request, default 5m
	OriginPatterns  []string      // extra allowed origins, see websocket.AcceptOptions
	Logger          *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Handler upgrades HTTP requests to evaluation sessions.
type Handler struct {
	open Opener
	opts Options
	log  *zap.Logger
}

// NewHandler returns a Handler that starts sessions with open.
func NewHandler(open Opener, opts Options) *Handler {
	opts = opts.withDefaults()
	return &Handler{open: open, opts: opts, log: opts.Logger.Named("remote")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.opts.OriginPatterns})
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.opts.MaxMessageBytes)

	id := uuid.NewString()
	log := h.log.With(zap.String("session", id), zap.String("remote", r.RemoteAddr))
	ctx := r.Context()

	sess, err := h.open(ctx)
	if err != nil {
		log.Warn("opening session", zap.Error(err))
		conn.Close(websocket.StatusTryAgainLater, "no runtime available")
		return
	}
	defer sess.Close()
	log.Info("session started")

	for {
		var req Request
		readCtx, cancel := context.WithTimeout(ctx, h.opts.IdleTimeout)
		err := wsjson.Read(readCtx, conn, &req)
		cancel()
		if err != nil {
			switch {
			case isDecodeError(err):
				// wsjson has already closed the connection.
				log.Info("malformed request", zap.Error(err))
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				log.Info("session closed by peer")
			case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
				log.Info("session idle, closing")
				conn.Close(websocket.StatusPolicyViolation, "idle timeout")
			default:
				log.Debug("reading request", zap.Error(err))
			}
			return
		}

		resp := sess.Eval(ctx, req)
		resp.ID = req.ID
		resp.Session = id
		if resp.Error != nil {
			log.Debug("evaluation failed", zap.String("id", req.ID), zap.String("error", resp.Error.Name+": "+resp.Error.Message))
		}
		if err := h.write(ctx, conn, resp); err != nil {
			log.Debug("writing response", zap.Error(err))
			return
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, resp Response) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, resp)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
