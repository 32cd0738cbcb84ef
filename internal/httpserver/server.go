// Package httpserver exposes the chat REST surface: conversation CRUD and
// the streaming chat relay.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/botbyte/botbyte-go/internal/ai"
	"github.com/botbyte/botbyte-go/internal/logger"
	"github.com/botbyte/botbyte-go/internal/store"
)

// ChatService is the slice of the provider adapter the relay needs; tests
// substitute a scripted fake.
type ChatService interface {
	SendMessage(ctx context.Context, history []ai.Message, opts ai.SendOptions) (*ai.Result, error)
}

// Server handles the chat API.
type Server struct {
	store        *store.Store
	chat         ChatService
	tools        map[string]ai.Tool
	systemPrompt string
}

// New builds a Server around its two collaborators.
func New(st *store.Store, chat ChatService) *Server {
	return &Server{store: st, chat: chat}
}

// SetTools makes the given tools available to the model on every turn.
func (s *Server) SetTools(tools map[string]ai.Tool) {
	s.tools = tools
}

// SetSystemPrompt prepends a system message to every exchange.
func (s *Server) SetSystemPrompt(prompt string) {
	s.systemPrompt = prompt
}

// Router assembles the chi router for the whole API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{userID}", s.handleListConversations)
		r.Get("/conversations/{id}/messages", s.handleListMessages)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
		r.Post("/stream", s.handleChatStream)
	})

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Botbyte chat API"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server is running"})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Warn("write response failed", "error", err)
	}
}
