package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"repolens/internal/index"
	"repolens/internal/store"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct returns a ValidationError keyed by JSON field name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, e := range verrs {
		fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
	}
	return NewValidationError(fields)
}

type EstimateParams struct {
	Repo  string `json:"repo" validate:"required"`
	Token string `json:"token"`
}

type IndexParams struct {
	Repo    string `json:"repo" validate:"required"`
	Token   string `json:"token"`
	Replace bool   `json:"replace"`
}

type QuestionParams struct {
	Question string `json:"question" validate:"required,max=4000"`
}

type EstimateResponse struct {
	Repo      string `json:"repo"`
	Fragments int    `json:"fragments"`
}

type JobResponse struct {
	ID         string       `json:"id"`
	ProjectID  string       `json:"project_id"`
	Repo       string       `json:"repo"`
	State      string       `json:"state"`
	Phase      string       `json:"phase,omitempty"`
	Processed  int          `json:"processed"`
	Total      int          `json:"total"`
	Error      string       `json:"error,omitempty"`
	Result     *IndexResult `json:"result,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

type IndexResult struct {
	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	Files        int     `json:"files"`
	Fragments    int     `json:"fragments"`
	Replaced     bool    `json:"replaced"`
	DurationSecs float64 `json:"duration_seconds"`
}

type Citation struct {
	FileName      string  `json:"file_name"`
	Summary       string  `json:"summary"`
	SourceCode    string  `json:"source_code,omitempty"`
	StartLine     int     `json:"start_line"`
	EndLine       int     `json:"end_line"`
	ChunkType     string  `json:"chunk_type"`
	Similarity    float64 `json:"similarity"`
	RawSimilarity float64 `json:"raw_similarity"`
}

// StreamEvent is one NDJSON line of an /ask response.
type StreamEvent struct {
	Type          string     `json:"type"`
	Token         string     `json:"token,omitempty"`
	Citations     []Citation `json:"citations,omitempty"`
	ContextTokens int        `json:"context_tokens,omitempty"`
	Error         string     `json:"error,omitempty"`
	Delivered     int        `json:"delivered,omitempty"`
}

const (
	EventCitations = "citations"
	EventToken     = "token"
	EventDone      = "done"
	EventError     = "error"
)

func toJobResponse(j index.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		ProjectID: j.ProjectID,
		Repo:      j.RepoRef,
		State:     string(j.State),
		Phase:     j.Phase,
		Processed: j.Processed,
		Total:     j.Total,
		Error:     j.Error,
		CreatedAt: j.CreatedAt,
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		resp.StartedAt = &t
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		resp.FinishedAt = &t
	}
	if r := j.Result; r != nil {
		resp.Result = &IndexResult{
			SuccessCount: r.SuccessCount,
			ErrorCount:   r.ErrorCount,
			Files:        r.Files,
			Fragments:    r.Fragments,
			Replaced:     r.Replaced,
			DurationSecs: r.Duration.Seconds(),
		}
	}
	return resp
}

func toCitations(results []store.SearchResult, withCode bool) []Citation {
	out := make([]Citation, len(results))
	for i, r := range results {
		out[i] = Citation{
			FileName:      r.FileName,
			Summary:       r.Summary,
			StartLine:     r.StartLine,
			EndLine:       r.EndLine,
			ChunkType:     r.ChunkType,
			Similarity:    r.Similarity,
			RawSimilarity: r.RawSimilarity,
		}
		if withCode {
			out[i].SourceCode = r.SourceCode
		}
	}
	return out
}
