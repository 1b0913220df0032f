package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/api"
	"github.com/cloo-solutions/draftdesk/internal/api/middleware"
	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/pagination"
	"github.com/cloo-solutions/draftdesk/internal/service"
	"github.com/go-chi/chi/v5"
)

type DraftService interface {
	Create(ctx context.Context, input service.CreateDraftInput) (*domain.Draft, error)
	List(ctx context.Context, input service.ListDraftsInput) (*pagination.PageResult[*domain.Draft], error)
	Get(ctx context.Context, ownerID, id string) (*domain.Draft, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type DraftHandler struct {
	svc DraftService
}

func NewDraftHandler(svc DraftService) *DraftHandler {
	return &DraftHandler{svc: svc}
}

type CreateDraftRequest struct {
	Question             string   `json:"question"`
	AnswerBody           string   `json:"answer_body"`
	ReferencedSectionIDs []string `json:"referenced_section_ids"`
}

type DraftResponse struct {
	ID                   string   `json:"id"`
	Question             string   `json:"question"`
	AnswerBody           string   `json:"answer_body"`
	ReferencedSectionIDs []string `json:"referenced_section_ids"`
	CreatedAt            string   `json:"created_at"`
}

type DraftListResponse struct {
	Items   []*DraftResponse `json:"items"`
	Cursor  string           `json:"cursor,omitempty"`
	HasMore bool             `json:"has_more"`
}

func draftToResponse(d *domain.Draft) *DraftResponse {
	refs := d.ReferencedSectionIDs
	if refs == nil {
		refs = []string{}
	}
	return &DraftResponse{
		ID:                   d.ID,
		Question:             d.Question,
		AnswerBody:           d.AnswerBody,
		ReferencedSectionIDs: refs,
		CreatedAt:            d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *DraftHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	draft, err := h.svc.Create(r.Context(), service.CreateDraftInput{
		OwnerID:              ownerID,
		Question:             req.Question,
		AnswerBody:           req.AnswerBody,
		ReferencedSectionIDs: req.ReferencedSectionIDs,
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, draftToResponse(draft))
}

func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, err := h.svc.List(r.Context(), service.ListDraftsInput{
		OwnerID: ownerID,
		Cursor:  r.URL.Query().Get("cursor"),
		Limit:   parseLimit(r),
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	items := make([]*DraftResponse, len(page.Items))
	for i, d := range page.Items {
		items[i] = draftToResponse(d)
	}

	api.Success(w, http.StatusOK, DraftListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *DraftHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	draft, err := h.svc.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, draftToResponse(draft))
}

func (h *DraftHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.svc.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
