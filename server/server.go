// Package server exposes the chat pipeline over HTTP: a streaming
// submit endpoint plus history read and delete.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/richinex/palaver/engine"
	"github.com/richinex/palaver/history"
	"github.com/richinex/palaver/stream"
)

// DefaultHeartbeat is the keep-alive comment interval for live streams.
const DefaultHeartbeat = 10 * time.Second

// submitRequest is the body of POST /chat/stream.
type submitRequest struct {
	Question string `json:"question"`
	ChatID   string `json:"chatId"`
	UserInfo *struct {
		ID string `json:"id"`
	} `json:"userInfo"`
}

// historyResponse is the body of GET /chat/history/{id}.
type historyResponse struct {
	ChatID   string           `json:"chat_id"`
	Messages []historyMessage `json:"messages"`
	Total    int              `json:"total"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// deleteResponse is the body of DELETE /chat/history/{id}.
type deleteResponse struct {
	ChatID  string `json:"chat_id"`
	Success bool   `json:"success"`
}

// sessionsResponse is the body of GET /chat/sessions.
type sessionsResponse struct {
	Sessions []sessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}

type sessionSummary struct {
	ChatID    string `json:"chat_id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

// Server handles the chat HTTP surface. One engine run per streaming
// request; requests for different sessions are independent.
type Server struct {
	engine     *engine.Engine
	store      history.Store
	windowSize int
	heartbeat  time.Duration
	log        zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithWindowSize overrides the history read bound.
func WithWindowSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.windowSize = n
		}
	}
}

// WithHeartbeat overrides the keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New creates a server over the given engine and store.
func New(eng *engine.Engine, store history.Store, opts ...Option) *Server {
	s := &Server{
		engine:     eng,
		store:      store,
		windowSize: history.DefaultWindow,
		heartbeat:  DefaultHeartbeat,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/stream", s.handleStream)
	mux.HandleFunc("GET /chat/history/{id}", s.handleHistory)
	mux.HandleFunc("DELETE /chat/history/{id}", s.handleDelete)
	mux.HandleFunc("GET /chat/sessions", s.handleSessions)
	return mux
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}
	userID := ""
	if req.UserInfo != nil {
		userID = req.UserInfo.ID
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Keep the connection alive through long tool calls. The writer
	// drops comments once a terminal event has been sent.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := sw.Comment("keep-alive"); err != nil {
					return
				}
			}
		}
	}()

	runErr := s.engine.Run(r.Context(), engine.Request{
		ChatID:   chatID,
		UserID:   userID,
		Question: req.Question,
	}, sw)
	if runErr != nil {
		s.log.Error().Err(runErr).Str("chat_id", chatID).Msg("stream request failed")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	window, err := s.store.Window(r.Context(), chatID, s.windowSize)
	if err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("history read failed")
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	resp := historyResponse{
		ChatID:   chatID,
		Messages: make([]historyMessage, len(window)),
		Total:    len(window),
	}
	for i, m := range window {
		resp.Messages[i] = historyMessage{Role: m.Role, Content: m.Content}
	}
	writeJSON(w, resp)
}

// handleDelete removes a session and its messages. Deleting a session
// that does not exist still succeeds.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	if err := s.store.Clear(r.Context(), chatID); err != nil {
		s.log.Error().Err(err).Str("chat_id", chatID).Msg("history delete failed")
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, deleteResponse{ChatID: chatID, Success: true})
}

// handleSessions lists sessions, most recently updated first, optionally
// filtered by the user query parameter.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")

	sessions, err := s.store.Sessions(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Msg("session list failed")
		http.Error(w, "sessions unavailable", http.StatusInternalServerError)
		return
	}

	resp := sessionsResponse{
		Sessions: make([]sessionSummary, len(sessions)),
		Total:    len(sessions),
	}
	for i, sess := range sessions {
		resp.Sessions[i] = sessionSummary{
			ChatID:    sess.ID,
			Title:     sess.Title,
			UpdatedAt: sess.UpdatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding failed", http.StatusInternalServerError)
	}
}
