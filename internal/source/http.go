package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/steveyegge/agentotel/internal/hostevent"
)

const (
	httpChanSize     = 256
	maxBodyBytes     = 4 << 20
	wsReadLimit      = 1 << 20
	replyTimeout     = 5 * time.Second
	shutdownTimeout  = 5 * time.Second
	notificationType = "notification"
)

// HTTP accepts envelopes over POST /v1/events and a WebSocket at
// /v1/events/ws. Toggle outcomes for WebSocket events are written back on the
// same connection.
type HTTP struct {
	addr string
	log  zerolog.Logger

	ch   chan hostevent.Event
	done chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	started   bool

	bound net.Addr
}

// NewHTTP returns an ingest server for addr. Nothing listens until Events.
func NewHTTP(addr string, l zerolog.Logger) *HTTP {
	return &HTTP{
		addr: addr,
		log:  l,
		ch:   make(chan hostevent.Event, httpChanSize),
		done: make(chan struct{}),
	}
}

// Addr is the bound listen address, valid after Events returns.
func (s *HTTP) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bound == nil {
		return s.addr
	}
	return s.bound.String()
}

// Handler is the instrumented route table.
func (s *HTTP) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.handlePost)
	mux.HandleFunc("GET /v1/events/ws", s.handleWebSocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	return otelhttp.NewHandler(mux, "agentotel.ingest")
}

// Events listens on the configured address and serves until ctx is done,
// then shuts the server down and closes the channel.
func (s *HTTP) Events(ctx context.Context) (<-chan hostevent.Event, error) {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.started = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// WebSocket handlers outlive Shutdown; their reads end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("ingest server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.close()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("ingest listening")
	return s.ch, nil
}

// close stops delivery. Senders blocked on the channel are released through
// done before the channel itself is closed.
func (s *HTTP) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}

func (s *HTTP) deliver(ctx context.Context, ev hostevent.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handlePost accepts one envelope or a JSON array of them. Malformed array
// elements are skipped; the response reports how many were accepted.
func (s *HTTP) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "reading body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if !gjson.ValidBytes(body) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	doc := gjson.ParseBytes(body)
	var envelopes []gjson.Result
	if doc.IsArray() {
		envelopes = doc.Array()
	} else {
		envelopes = []gjson.Result{doc}
	}

	accepted := 0
	for _, env := range envelopes {
		ev, err := hostevent.Decode([]byte(env.Raw))
		if err != nil {
			if !doc.IsArray() {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			s.log.Debug().Err(err).Msg("skipping malformed envelope")
			continue
		}
		if err := s.deliver(r.Context(), ev); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprintf(w, `{"accepted":%d}`, accepted)
}

type notificationMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Enabled bool   `json:"enabled"`
}

// handleWebSocket reads one envelope per text message until the peer closes.
func (s *HTTP) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(wsReadLimit)

	ctx := r.Context()
	reply := func(n hostevent.Notification) {
		wctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		msg := notificationMessage{Type: notificationType, Message: n.Message, Enabled: n.Enabled}
		if err := wsjson.Write(wctx, conn, msg); err != nil {
			s.log.Debug().Err(err).Msg("websocket reply failed")
		}
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				s.log.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		ev, err := hostevent.Decode(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("skipping malformed websocket message")
			continue
		}
		ev.Reply = reply
		if err := s.deliver(ctx, ev); err != nil {
			conn.Close(websocket.StatusGoingAway, "ingest closed")
			return
		}
	}
}
