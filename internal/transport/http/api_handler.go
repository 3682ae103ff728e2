package http

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"exam-quiz-service/internal/app"
	"exam-quiz-service/internal/auth"
	"exam-quiz-service/internal/domain"
)

// APIHandler exposes the exam flow as JSON over HTTP.
type APIHandler struct {
	service *app.ExamService
	tokens  *auth.Tokens
	logger  *log.Logger
}

func NewAPIHandler(service *app.ExamService, tokens *auth.Tokens, logger *log.Logger) *APIHandler {
	return &APIHandler{service: service, tokens: tokens, logger: logger}
}

type registerResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

type cursorRequest struct {
	Index int `json:"index"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// Register mounts the API routes on mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/categories", h.listCategories)
	mux.HandleFunc("POST /api/users", h.registerUser)
	mux.HandleFunc("POST /api/attempts/{userId}", h.withUser(h.startAttempt))
	mux.HandleFunc("GET /api/attempts/{userId}", h.withUser(h.getAttempt))
	mux.HandleFunc("PUT /api/attempts/{userId}/cursor", h.withUser(h.moveCursor))
	mux.HandleFunc("POST /api/attempts/{userId}/answers", h.withUser(h.answer))
	mux.HandleFunc("POST /api/attempts/{userId}/submit", h.withUser(h.submit))
}

func (h *APIHandler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

func (h *APIHandler) registerUser(w http.ResponseWriter, r *http.Request) {
	var reg domain.Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrInvalidRegistration, err))
		return
	}
	userID, err := h.service.Register(r.Context(), reg)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	token, err := h.tokens.Issue(userID)
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{UserID: userID, Token: token})
}

func (h *APIHandler) startAttempt(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := h.service.Start(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) getAttempt(w http.ResponseWriter, r *http.Request, userID string) {
	view, err := h.service.Attempt(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) moveCursor(w http.ResponseWriter, r *http.Request, userID string) {
	var req cursorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid cursor payload")
		return
	}
	view, err := h.service.Goto(r.Context(), userID, req.Index)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) answer(w http.ResponseWriter, r *http.Request, userID string) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid answer payload")
		return
	}
	view, err := h.service.Answer(r.Context(), userID, req.Answer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *APIHandler) submit(w http.ResponseWriter, r *http.Request, userID string) {
	res, err := h.service.Submit(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// withUser resolves {userId} and checks the bearer token against it.
func (h *APIHandler) withUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.PathValue("userId")
		if err := h.tokens.Verify(auth.BearerToken(r.Header.Get("Authorization")), userID); err != nil {
			writeError(w, h.logger, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err))
			return
		}
		next(w, r, userID)
	}
}
