package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/draftdesk/internal/api"
	"github.com/cloo-solutions/draftdesk/internal/api/middleware"
	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/service"
)

type AnswerService interface {
	Ask(ctx context.Context, input service.AskInput) (*service.AskOutput, error)
}

type AnswerHandler struct {
	svc AnswerService
}

func NewAnswerHandler(svc AnswerService) *AnswerHandler {
	return &AnswerHandler{svc: svc}
}

type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type AnswerResponse struct {
	Answer            string                      `json:"answer"`
	CitedReferenceIDs []string                    `json:"cited_reference_ids"`
	Grounded          bool                        `json:"grounded"`
	Refused           bool                        `json:"refused"`
	References        []domain.RetrievedReference `json:"references"`
}

func (h *AnswerHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.K < 0 {
		api.Error(w, http.StatusBadRequest, "k must be positive")
		return
	}

	out, err := h.svc.Ask(r.Context(), service.AskInput{
		OwnerID:  ownerID,
		Question: req.Question,
		K:        req.K,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	cited := out.Answer.CitedReferenceIDs
	if cited == nil {
		cited = []string{}
	}
	refs := out.References
	if refs == nil {
		refs = []domain.RetrievedReference{}
	}

	api.Success(w, http.StatusOK, AnswerResponse{
		Answer:            out.Answer.Text,
		CitedReferenceIDs: cited,
		Grounded:          out.Answer.Grounded,
		Refused:           out.Answer.Refused,
		References:        refs,
	})
}
