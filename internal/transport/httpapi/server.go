// Package httpapi is the HTTP binding of a parley node: the server other nodes
// deliver to, a small local API, and the client used as node.Transport.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/node"
)

const shutdownTimeout = 5 * time.Second

// Server serves the node API.
type Server struct {
	svc          *node.Service
	address      string
	historyLimit int
	now          func() time.Time
	log          zerolog.Logger
	router       chi.Router
}

// NewServer creates a server for svc. address is the advertised address
// reported by /status; historyLimit is the default page size of
// /api/messages.
func NewServer(svc *node.Service, address string, historyLimit int, log zerolog.Logger) *Server {
	s := &Server{
		svc:          svc,
		address:      address,
		historyLimit: historyLimit,
		now:          time.Now,
		log:          log,
	}
	s.router = s.routes()
	return s
}

// WithClock replaces the clock passed to the service.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/receive", s.handleReceive)
	r.Get("/status", s.handleStatus)

	r.Route("/api", func(r chi.Router) {
		r.Get("/messages", s.handleHistory)
		r.Get("/messages/unread", s.handleUnread)
		r.Post("/messages/send", s.handleSend)
		r.Get("/users/online", s.handleOnline)
		r.Post("/peers", s.handleAddPeer)
	})

	return r
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	var p Payload
	if err := decode(r.Body, &p); err != nil {
		s.writeError(w, err)
		return
	}

	id, err := s.svc.Receive(r.Context(), p.Inbound(), s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SendResponse{Status: "ok", ID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	online, err := s.svc.OnlinePeers(r.Context(), s.now())
	if err != nil {
		s.writeError(w, err)
		return
	}

	count, err := s.svc.MessageCount(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	names := make([]string, 0, len(online))
	for _, p := range online {
		names = append(names, p.Username)
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Status:       string(chat.StatusOnline),
		Username:     s.svc.Self(),
		Address:      s.address,
		Peers:        names,
		MessageCount: count,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	msgs, err := s.svc.History(r.Context(), s.svc.Self(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.svc.DrainUnread(r.Context(), s.svc.Self())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(msgs))
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decode(r.Body, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if req.Receiver == chat.Broadcast {
		res, err := s.svc.SendToAll(r.Context(), s.svc.Self(), req.Text, s.now())
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SendResponse{
			Status:    "sent",
			Delivered: res.Delivered,
			Failed:    res.FailedPeers(),
		})
		return
	}

	id, err := s.svc.Send(r.Context(), s.svc.Self(), req.Receiver, req.Text, s.now())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SendResponse{Status: "sent", ID: id})
	case errors.Is(err, chat.ErrDeliveryFailed):
		writeJSON(w, http.StatusAccepted, SendResponse{Status: "stored", ID: id, Error: err.Error()})
	default:
		s.writeError(w, err)
	}
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	online, err := s.svc.OnlinePeers(r.Context(), now)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]PeerView, 0, len(online))
	for _, p := range online {
		views = append(views, PeerView{
			Username: p.Username,
			Address:  p.Address,
			LastSeen: p.LastSeen,
			Status:   s.svc.Presence().Classify(p, now),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAddPeer(w http.ResponseWriter, r *http.Request) {
	var req AddPeerRequest
	if err := decode(r.Body, &req); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.svc.AddPeer(r.Context(), req.Username, req.Address, s.now()); err != nil {
		if !errors.Is(err, chat.ErrStorageUnavailable) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SendResponse{Status: "ok"})
}

// writeError maps the chat error taxonomy onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrMalformedMessage), errors.Is(err, chat.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, chat.ErrPeerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chat.ErrDeliveryFailed):
		status = http.StatusBadGateway
	case errors.Is(err, chat.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", status).Msg("request failed")
	}

	resp := ErrorResponse{Error: err.Error()}
	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		resp.Fields = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			resp.Fields[fe.Field] = fe.Err.Error()
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil(msgs []chat.Message) []chat.Message {
	if msgs == nil {
		return []chat.Message{}
	}
	return msgs
}
