// Package web serves the chat service over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stupiduntilnot/investbot/internal/chat"
	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
)

// Banner is the body served on GET /.
const Banner = "GPT Invest News Bot is running."

const maxBodyBytes = 64 << 10

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

type chatResponse struct {
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Server exposes the chat service on a single JSON endpoint.
type Server struct {
	service *chat.Service
	logger  *slog.Logger
}

func NewServer(service *chat.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{service: service, logger: logger.With("component", "web")}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.home)
	mux.HandleFunc("POST /{$}", s.chat)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	return mux
}

func (s *Server) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, Banner)
}

// chat answers {"message", "user_id"}. With a user_id the message goes
// through the per-user conversation; without one it is a single-turn
// completion.
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		reply, err := s.service.Complete(r.Context(), req.Message)
		if err != nil {
			s.logger.WarnContext(r.Context(), "completion failed", "err", err)
			writeJSON(w, http.StatusBadGateway, chatResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, chatResponse{Response: reply})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, chatResponse{Error: "message is required"})
		return
	}
	res := s.service.Handle(r.Context(), chat.Inbound{
		UserID: ctxpkg.UserID("web:" + userID),
		Text:   req.Message,
	})
	var completionErr *chat.CompletionError
	if res.Failed() && errors.As(res.Err, &completionErr) {
		writeJSON(w, http.StatusBadGateway, chatResponse{Error: completionErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: res.Text})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListenAndServe serves h on addr until ctx is done, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
