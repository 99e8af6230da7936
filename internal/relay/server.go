package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/roach88/pixelgrid/internal/coords"
	"github.com/roach88/pixelgrid/internal/gateway"
	"github.com/roach88/pixelgrid/internal/grid"
)

// ClientIDHeader carries the caller's session id.
const ClientIDHeader = "X-Client-ID"

const (
	writeWait     = 10 * time.Second
	shutdownGrace = 5 * time.Second
)

// Server serves a gateway over HTTP.
type Server struct {
	gw       gateway.Gateway
	router   *mux.Router
	upgrader websocket.Upgrader

	done      chan struct{}
	closeOnce sync.Once
	streams   sync.WaitGroup
}

// NewServer returns a server fronting gw.
func NewServer(gw gateway.Gateway) *Server {
	s := &Server{
		gw: gw,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.HandleFunc("/pixels", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/pixels", s.handleDeleteAll).Methods(http.MethodDelete)
	r.HandleFunc("/pixels/{id}", s.handleUpsert).Methods(http.MethodPut)
	r.HandleFunc("/changes", s.handleChanges).Methods(http.MethodGet)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends every open change stream and waits for them. It does not
// close the gateway.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.streams.Wait()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- hs.Serve(ln) }()
	slog.Info("relay listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.Close()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("relay stopped")
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.gw.FetchAll(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if recs == nil {
		recs = []gateway.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleUpsert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	x, y, err := coords.ParseRecordID(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var rec gateway.Record
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode record: %w", err))
		return
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id || rec.X != x || rec.Y != y {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("record %s at (%d, %d) does not match path id %s", rec.ID, rec.X, rec.Y, id))
		return
	}
	color, err := grid.ParseColor(rec.Color)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec.Color = string(color)

	if err := s.gw.Upsert(r.Context(), rec); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	exclude := r.URL.Query().Get("exclude")
	if exclude == "" {
		exclude = gateway.PlaceholderID
	}
	if err := s.gw.DeleteAll(r.Context(), exclude); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		writeError(w, http.StatusServiceUnavailable, errors.New("relay shutting down"))
		return
	default:
	}

	sub, err := s.gw.Subscribe(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	defer sub.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	s.streams.Add(1)
	defer s.streams.Done()

	client := r.Header.Get(ClientIDHeader)
	slog.Info("change stream opened", "client", client)
	defer slog.Info("change stream closed", "client", client)

	// Reading is required for control frames; clients send nothing else.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return

		case <-s.done:
			closeStream(conn, websocket.CloseGoingAway, "relay shutting down")
			return

		case ch, ok := <-sub.Changes():
			if !ok {
				reason := "change feed closed"
				if err := sub.Err(); err != nil {
					reason = err.Error()
				}
				closeStream(conn, websocket.CloseGoingAway, reason)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ch); err != nil {
				slog.Debug("change stream write failed", "client", client, "error", err)
				return
			}
		}
	}
}

// closeStream sends a close frame. Close reasons are limited to 123 bytes.
func closeStream(conn *websocket.Conn, code int, reason string) {
	if len(reason) > 123 {
		reason = reason[:123]
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		slog.Debug("close frame not sent", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}
