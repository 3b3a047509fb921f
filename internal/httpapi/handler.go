package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aurora-erp/aurora-erp/internal/listing"
	"github.com/aurora-erp/aurora-erp/internal/meta"
	"github.com/aurora-erp/aurora-erp/internal/shared"
	"github.com/aurora-erp/aurora-erp/internal/viewgen"
	"github.com/aurora-erp/aurora-erp/internal/workflow"
)

// ViewRenderer is the slice of the generator this handler consumes.
type ViewRenderer interface {
	RenderList(ctx context.Context, actor shared.Actor, req viewgen.ListRequest) (viewgen.Output, error)
	RenderForm(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (viewgen.Output, error)
}

// ListService is the slice of the listing service this handler consumes.
type ListService interface {
	FetchList(ctx context.Context, actor shared.Actor, entityName string, filters map[string]any, sort listing.Sort, page, pageSize int) (listing.ListResult, error)
	FetchRecord(ctx context.Context, actor shared.Actor, entityName, id string, view meta.ViewKind) (map[string]any, error)
}

// RecordService is the generic record mutation slice of the workflow service.
type RecordService interface {
	UpdateRecord(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID, fields map[string]any) (workflow.Result, error)
	SoftDeleteRecord(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID) (workflow.Result, error)
	RestoreRecord(ctx context.Context, actor shared.Actor, entityName string, id uuid.UUID) (workflow.Result, error)
}

// Handler serves the generated views and the record API.
type Handler struct {
	logger   *slog.Logger
	views    ViewRenderer
	lists    ListService
	records  RecordService
	flow     WorkflowService
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, views ViewRenderer, lists ListService, records RecordService, flow WorkflowService) *Handler {
	return &Handler{
		logger:   logger,
		views:    views,
		lists:    lists,
		records:  records,
		flow:     flow,
		validate: validator.New(),
	}
}

// MountRoutes registers all routes on the router. The caller is expected to
// have installed the actor middleware already.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/views/{entity}", func(r chi.Router) {
		r.Get("/", h.viewList)
		r.Get("/new", h.viewCreate)
		r.Get("/{id}", h.viewDetail)
		r.Get("/{id}/edit", h.viewEdit)
	})

	r.Route("/api/{entity}", func(r chi.Router) {
		r.Get("/", h.listRecords)
		r.Get("/{id}", h.getRecord)
		r.Patch("/{id}", h.updateRecord)
		r.Delete("/{id}", h.deleteRecord)
		r.Post("/{id}/restore", h.restoreRecord)
	})

	h.mountWorkflowRoutes(r)
}

func actor(r *http.Request) shared.Actor {
	a, _ := shared.ActorFromContext(r.Context())
	return a
}

// listParams splits the query string into reserved list controls and field
// filters. Everything that is not a control key is a filter.
func listParams(r *http.Request) (map[string]any, listing.Sort, int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	sort := listing.Sort{Field: q.Get("sort"), Direction: q.Get("dir")}

	filters := make(map[string]any)
	for key, values := range q {
		switch key {
		case "page", "page_size", "sort", "dir":
			continue
		}
		if len(values) == 1 {
			filters[key] = values[0]
			continue
		}
		seq := make([]any, 0, len(values))
		for _, v := range values {
			seq = append(seq, v)
		}
		filters[key] = seq
	}
	return filters, sort, page, pageSize
}

func (h *Handler) viewList(w http.ResponseWriter, r *http.Request) {
	filters, sort, page, pageSize := listParams(r)
	out, err := h.views.RenderList(r.Context(), actor(r), viewgen.ListRequest{
		Entity:   chi.URLParam(r, "entity"),
		Filters:  filters,
		Sort:     sort,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeHTMLError(w, h.logger, err)
		return
	}
	h.writeHTML(w, out)
}

func (h *Handler) viewCreate(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, "", meta.ViewCreate)
}

func (h *Handler) viewDetail(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, chi.URLParam(r, "id"), meta.ViewView)
}

func (h *Handler) viewEdit(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, chi.URLParam(r, "id"), meta.ViewEdit)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, id string, view meta.ViewKind) {
	out, err := h.views.RenderForm(r.Context(), actor(r), chi.URLParam(r, "entity"), id, view)
	if err != nil {
		writeHTMLError(w, h.logger, err)
		return
	}
	h.writeHTML(w, out)
}

func (h *Handler) writeHTML(w http.ResponseWriter, out viewgen.Output) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(out.HTML)); err != nil {
		h.logger.Error("write view", slog.Any("error", err))
	}
}

type listResponse struct {
	Records    []map[string]any `json:"records"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	Total      int              `json:"total"`
	TotalPages int              `json:"total_pages"`
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	filters, sort, page, pageSize := listParams(r)
	result, err := h.lists.FetchList(r.Context(), actor(r), chi.URLParam(r, "entity"), filters, sort, page, pageSize)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{
		Records:    result.Records,
		Page:       result.Pagination.Page,
		PerPage:    result.Pagination.PerPage,
		Total:      result.Pagination.Total,
		TotalPages: result.Pagination.TotalPages,
	})
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.lists.FetchRecord(r.Context(), actor(r), chi.URLParam(r, "entity"), chi.URLParam(r, "id"), meta.ViewView)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	fields := map[string]any{}
	if err := decodeJSON(r, &fields); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.records.UpdateRecord(r.Context(), actor(r), chi.URLParam(r, "entity"), id, fields)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.records.SoftDeleteRecord(r.Context(), actor(r), chi.URLParam(r, "entity"), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) restoreRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	res, err := h.records.RestoreRecord(r.Context(), actor(r), chi.URLParam(r, "entity"), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeResult(w, res, http.StatusOK)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, shared.NewValidationError("id", "must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// validationMessage flattens the first validator violation into the shared
// taxonomy so transport errors read like every other validation failure.
func (h *Handler) checkStruct(payload any) error {
	err := h.validate.Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		return shared.NewValidationError(field, "failed "+verrs[0].Tag()+" validation")
	}
	return shared.NewValidationError("", err.Error())
}
