package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/botbyte/botbyte-go/internal/logger"
	"github.com/botbyte/botbyte-go/internal/store"
)

type createConversationRequest struct {
	UserID string `json:"userId"`
	Mode   string `json:"mode"`
	Title  string `json:"title"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Mode == "" {
		req.Mode = "chat"
	}
	if req.Title == "" {
		req.Title = "New conversation"
	}

	conv, err := s.store.CreateConversation(r.Context(), req.UserID, req.Mode, req.Title)
	if err != nil {
		logger.L.Error("create conversation failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	s.respondJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	list, err := s.store.ListConversations(r.Context(), userID)
	if err != nil {
		logger.L.Error("list conversations failed", "error", err, "user", userID)
		s.respondError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetConversation(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		logger.L.Error("load conversation failed", "error", err, "conversation", id)
		s.respondError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	msgs, err := s.store.ListMessages(r.Context(), id)
	if err != nil {
		logger.L.Error("list messages failed", "error", err, "conversation", id)
		s.respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	s.respondJSON(w, http.StatusOK, msgs)
}

type deleteConversationRequest struct {
	UserID string `json:"userId"`
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req deleteConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.respondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := s.store.DeleteConversation(r.Context(), id, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "conversation not found")
			return
		}
		logger.L.Error("delete conversation failed", "error", err, "conversation", id)
		s.respondError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id})
}
