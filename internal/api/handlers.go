package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"

	"github.com/starford/gleaner/internal/apperr"
	"github.com/starford/gleaner/internal/batch"
	"github.com/starford/gleaner/internal/enrich"
	"github.com/starford/gleaner/internal/index"
	"github.com/starford/gleaner/internal/ingest"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/parser"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/services/arxiv"
)

// Service is the ingestion surface the handlers call.
type Service interface {
	Capture(ctx context.Context, item enrich.Item) (models.Record, error)
	CapturePaper(ctx context.Context, channel, id, note string) (models.Record, error)
	Record(id string) (models.Record, error)
	Recent(limit int, channel string) []models.Record
	Document(id string) (string, error)
	Rerender(ctx context.Context, id string) (models.Record, error)
	Documents(channel, tag string, limit, offset int) ([]index.DocumentRow, int, error)
	Search(query string, limit int) ([]index.SearchResult, error)
	Stats() recordstore.Stats
	SearchPapers(ctx context.Context, channel, query string) ([]arxiv.Paper, error)
	SavePapers(ctx context.Context, channel, expr string, progress func(batch.Item)) (batch.Outcome, error)
}

var _ Service = (*ingest.Service)(nil)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc Service
	md  goldmark.Markdown
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc, md: goldmark.New()}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListRecords handles GET /api/records.
//
//	@Summary		List the newest records
//	@Tags			records
//	@Produce		json
//	@Param			limit	query		int		false	"Max records (default 20)"
//	@Param			channel	query		string	false	"Filter by channel"
//	@Success		200		{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	recs := h.svc.Recent(limit, q.Get("channel"))
	if recs == nil {
		recs = []models.Record{}
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: recs, Total: len(recs)})
}

// GetRecord handles GET /api/records/{id}.
//
//	@Summary		Get a single record
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record ID"
//	@Success		200	{object}	Record
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Record(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetDocument handles GET /api/records/{id}/document.
//
//	@Summary		Get the rendered document of a record
//	@Tags			records
//	@Produce		json,html
//	@Param			id		path		string	true	"Record ID"
//	@Param			format	query		string	false	"Response format"	Enums(json, markdown, html)
//	@Success		200		{object}	DocumentResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/document [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.svc.Document(id)
	if err != nil {
		writeError(w, "get document", err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "html":
		body := doc
		if parsed, err := parser.Parse([]byte(doc)); err == nil {
			body = parsed.Body
		}
		var buf bytes.Buffer
		if err := h.md.Convert([]byte(body), &buf); err != nil {
			writeError(w, "render html", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(doc))
	default:
		rec, _ := h.svc.Record(id)
		writeJSON(w, http.StatusOK, DocumentResponse{ID: id, Path: rec.RenderedPath, Markdown: doc})
	}
}

// RenderRecord handles POST /api/records/{id}/render.
//
//	@Summary		Rewrite the document of a record
//	@Tags			records
//	@Produce		json
//	@Param			id	path		string	true	"Record ID"
//	@Success		200	{object}	Record
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{id}/render [post]
func (h *Handler) RenderRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Rerender(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "render record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// CreateRecord handles POST /api/records.
//
//	@Summary		Capture content as a new record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CaptureRequest	true	"Content to capture"
//	@Success		201		{object}	Record
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records [post]
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CaptureRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validateCapture(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: err.Error(), Kind: apperr.Kind(err)})
		return
	}

	var (
		rec models.Record
		err error
	)
	if req.Kind == models.KindPaper {
		rec, err = h.svc.CapturePaper(r.Context(), req.Channel, req.PaperID, req.Text)
	} else {
		rec, err = h.svc.Capture(r.Context(), enrich.Item{
			Kind:     req.Kind,
			Channel:  req.Channel,
			Text:     req.Text,
			URL:      req.URL,
			AudioURL: req.AudioURL,
		})
	}
	if err != nil {
		writeError(w, "capture", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func validateCapture(req CaptureRequest) error {
	if strings.TrimSpace(req.Channel) == "" {
		return fmt.Errorf("%w: channel is required", apperr.ErrInvalidRecord)
	}
	switch req.Kind {
	case models.KindText:
		if strings.TrimSpace(req.Text) == "" {
			return fmt.Errorf("%w: text is required", apperr.ErrInvalidRecord)
		}
	case models.KindVoice:
		if req.Text == "" && req.AudioURL == "" {
			return fmt.Errorf("%w: text or audio_url is required", apperr.ErrInvalidRecord)
		}
	case models.KindArticle:
		if req.URL == "" {
			return fmt.Errorf("%w: url is required", apperr.ErrInvalidRecord)
		}
	case models.KindPaper:
		if req.PaperID == "" {
			return fmt.Errorf("%w: paper_id is required", apperr.ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidRecord, req.Kind)
	}
	return nil
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List indexed documents
//	@Tags			documents
//	@Produce		json
//	@Param			channel	query		string	false	"Filter by channel"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	rows, total, err := h.svc.Documents(q.Get("channel"), q.Get("tag"), limit, max(offset, 0))
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	if rows == nil {
		rows = []index.DocumentRow{}
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: rows, Total: total})
}

// Stats handles GET /api/stats.
//
//	@Summary		Record counts by kind and channel
//	@Tags			records
//	@Produce		json
//	@Success		200	{object}	StatsResponse
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across rendered documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []index.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// SearchPapers handles POST /api/papers/search.
//
//	@Summary		Search arXiv and remember the results for the channel
//	@Tags			papers
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PaperSearchRequest	true	"Search"
//	@Success		200		{object}	PaperSearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/papers/search [post]
func (h *Handler) SearchPapers(w http.ResponseWriter, r *http.Request) {
	var req PaperSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Channel == "" || strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("channel and query are required"))
		return
	}
	papers, err := h.svc.SearchPapers(r.Context(), req.Channel, req.Query)
	if err != nil {
		writeError(w, "paper search", err)
		return
	}
	if papers == nil {
		papers = []arxiv.Paper{}
	}
	writeJSON(w, http.StatusOK, PaperSearchResponse{Papers: papers})
}

// SavePapers handles POST /api/papers/save.
//
//	@Summary		Save a selection of the channel's last paper search
//	@Tags			papers
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PaperSaveRequest	true	"Selection"
//	@Success		200		{object}	PaperSaveResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/papers/save [post]
func (h *Handler) SavePapers(w http.ResponseWriter, r *http.Request) {
	var req PaperSaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Channel == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("channel is required"))
		return
	}
	out, err := h.svc.SavePapers(r.Context(), req.Channel, req.Selection, nil)
	if err != nil {
		writeError(w, "save papers", err)
		return
	}
	writeJSON(w, http.StatusOK, saveResponse(out))
}

func saveResponse(out batch.Outcome) PaperSaveResponse {
	resp := PaperSaveResponse{
		BatchID:   out.ID,
		Succeeded: out.Succeeded(),
		Failed:    out.Failed(),
		Items:     make([]BatchItem, 0, len(out.Items)),
		Summary:   ingest.FormatOutcome(out),
	}
	for _, it := range out.Items {
		bi := BatchItem{Position: it.Position, Label: it.Label, Record: it.Record}
		if it.Err != nil {
			bi.Error = apperr.Kind(it.Err)
		}
		resp.Items = append(resp.Items, bi)
	}
	return resp
}
