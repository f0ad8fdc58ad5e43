package api

import (
	"github.com/starford/gleaner/internal/index"
	"github.com/starford/gleaner/internal/models"
	"github.com/starford/gleaner/internal/recordstore"
	"github.com/starford/gleaner/internal/services/arxiv"
)

// CaptureRequest is the request body for POST /api/records.
type CaptureRequest struct {
	Channel  string      `json:"channel" example:"notes" validate:"required"`
	Kind     models.Kind `json:"kind" example:"text" validate:"required"`
	Text     string      `json:"text,omitempty" example:"remember the milk #todo"`
	URL      string      `json:"url,omitempty" example:"https://example.com/post"`
	AudioURL string      `json:"audio_url,omitempty"`
	PaperID  string      `json:"paper_id,omitempty" example:"2401.01234"`
}

// Record is the record response type (aliased from the domain layer).
type Record = models.Record

// RecordListResponse wraps record listings.
type RecordListResponse struct {
	Records []Record `json:"records" validate:"required"`
	Total   int      `json:"total" example:"42" validate:"required"`
}

// DocumentResponse carries a rendered document.
type DocumentResponse struct {
	ID       string `json:"id" example:"007" validate:"required"`
	Path     string `json:"path,omitempty" example:"research/ml/007-attention.md"`
	Markdown string `json:"markdown" validate:"required"`
}

// DocumentListResponse wraps indexed document listings.
type DocumentListResponse struct {
	Documents []index.DocumentRow `json:"documents" validate:"required"`
	Total     int                 `json:"total" validate:"required"`
}

// StatsResponse is the store summary (aliased from the domain layer).
type StatsResponse = recordstore.Stats

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// PaperSearchRequest is the request body for POST /api/papers/search.
type PaperSearchRequest struct {
	Channel string `json:"channel" example:"papers" validate:"required"`
	Query   string `json:"query" example:"diffusion models" validate:"required"`
}

// PaperSearchResponse lists numbered candidates for a later save.
type PaperSearchResponse struct {
	Papers []arxiv.Paper `json:"papers" validate:"required"`
}

// PaperSaveRequest is the request body for POST /api/papers/save.
type PaperSaveRequest struct {
	Channel   string `json:"channel" example:"papers" validate:"required"`
	Selection string `json:"selection" example:"1,3-5" validate:"required"`
}

// BatchItem is one entry of a batch outcome.
type BatchItem struct {
	Position int     `json:"position" validate:"required"`
	Label    string  `json:"label"`
	Record   *Record `json:"record,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// PaperSaveResponse reports a batch outcome.
type PaperSaveResponse struct {
	BatchID   string      `json:"batch_id" validate:"required"`
	Succeeded int         `json:"succeeded" validate:"required"`
	Failed    int         `json:"failed" validate:"required"`
	Items     []BatchItem `json:"items" validate:"required"`
	Summary   string      `json:"summary" validate:"required"`
}

// AssetUploadResponse is returned after a successful asset upload.
type AssetUploadResponse struct {
	Key  string `json:"key" example:"assets/3f0c....ogg" validate:"required"`
	Size int64  `json:"size" example:"12345" validate:"required"`
}
