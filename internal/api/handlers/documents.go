package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/draftdesk/internal/api"
	"github.com/cloo-solutions/draftdesk/internal/api/middleware"
	"github.com/cloo-solutions/draftdesk/internal/domain"
	"github.com/cloo-solutions/draftdesk/internal/pagination"
	"github.com/cloo-solutions/draftdesk/internal/service"
	"github.com/go-chi/chi/v5"
)

type IngestionService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
	IngestText(ctx context.Context, input service.IngestTextInput) (*service.IngestResult, error)
}

type DocumentService interface {
	List(ctx context.Context, input service.ListDocumentsInput) (*pagination.PageResult[*domain.Document], error)
	Get(ctx context.Context, ownerID, id string) (*domain.Document, error)
	Delete(ctx context.Context, ownerID, id string) error
	SourceURL(ctx context.Context, ownerID, id string) (string, error)
}

type DocumentHandler struct {
	ingest IngestionService
	docs   DocumentService
}

func NewDocumentHandler(ingest IngestionService, docs DocumentService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, docs: docs}
}

type ChunkRequest struct {
	Content string `json:"content"`
	Page    int    `json:"page"`
}

type PageRequest struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// CreateDocumentRequest carries exactly one of Chunks, Text or Pages.
type CreateDocumentRequest struct {
	Title      string         `json:"title"`
	SourceType string         `json:"source_type"`
	Chunks     []ChunkRequest `json:"chunks,omitempty"`
	Text       string         `json:"text,omitempty"`
	Pages      []PageRequest  `json:"pages,omitempty"`
}

type CreateDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Sections   int    `json:"sections"`
}

type DocumentResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SourceType   string `json:"source_type"`
	Status       string `json:"status"`
	SectionCount int    `json:"section_count"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

type SourceURLResponse struct {
	DownloadURL string `json:"download_url"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:           d.ID,
		Title:        d.Title,
		SourceType:   d.SourceType,
		Status:       string(d.Status),
		SectionCount: d.SectionCount,
		Error:        d.Error,
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	sources := 0
	if len(req.Chunks) > 0 {
		sources++
	}
	if req.Text != "" {
		sources++
	}
	if len(req.Pages) > 0 {
		sources++
	}
	if sources != 1 {
		api.Error(w, http.StatusBadRequest, "exactly one of chunks, text or pages is required")
		return
	}

	var (
		result *service.IngestResult
		err    error
	)
	if len(req.Chunks) > 0 {
		chunks := make([]domain.ChunkInput, len(req.Chunks))
		for i, c := range req.Chunks {
			chunks[i] = domain.ChunkInput{Content: c.Content, Page: c.Page}
		}
		result, err = h.ingest.Ingest(r.Context(), service.IngestInput{
			OwnerID:    ownerID,
			Title:      req.Title,
			SourceType: req.SourceType,
			Chunks:     chunks,
		})
	} else {
		pages := make([]domain.PageText, len(req.Pages))
		for i, p := range req.Pages {
			pages[i] = domain.PageText{Page: p.Page, Text: p.Text}
		}
		result, err = h.ingest.IngestText(r.Context(), service.IngestTextInput{
			OwnerID:    ownerID,
			Title:      req.Title,
			SourceType: req.SourceType,
			Text:       req.Text,
			Pages:      pages,
		})
	}

	if err != nil {
		if result != nil && result.DocumentID != "" {
			api.HandlePartialIngest(w, r, err, result.DocumentID, result.SectionCount)
			return
		}
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusCreated, CreateDocumentResponse{
		DocumentID: result.DocumentID,
		Sections:   result.SectionCount,
	})
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page, err := h.docs.List(r.Context(), service.ListDocumentsInput{
		OwnerID: ownerID,
		Cursor:  r.URL.Query().Get("cursor"),
		Limit:   parseLimit(r),
	})
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	items := make([]*DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		items[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   items,
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	doc, err := h.docs.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.docs.Delete(r.Context(), ownerID, chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) SourceURL(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	if ownerID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	url, err := h.docs.SourceURL(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, r, err)
		return
	}

	api.Success(w, http.StatusOK, SourceURLResponse{DownloadURL: url})
}

// parseLimit reads ?limit, leaving clamping to the services. Garbage reads
// as zero, which selects the default page size.
func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
