package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dqgate/internal/apperr"
	"github.com/JonMunkholm/dqgate/internal/logging"
	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/routing"
	"github.com/JonMunkholm/dqgate/internal/storage"
	"github.com/JonMunkholm/dqgate/internal/template"
)

// maxRequestBody bounds run request bodies; datasets are passed by locator.
const maxRequestBody = 64 * 1024

// RunRequest triggers a validation run.
type RunRequest struct {
	// Dataset is an s3://bucket/key locator, or a path relative to DATA_DIR
	// when that is set.
	Dataset string `json:"dataset"`

	// Expectations, when set, validates the whole dataset against this one
	// suite instead of resolving a template.
	Expectations string `json:"expectations,omitempty"`
}

// RunResponse carries the run report and, when routing is configured, the
// keys of the artifacts written for it.
type RunResponse struct {
	Report       *pipeline.Report `json:"report"`
	Routed       *routing.Routed  `json:"routed,omitempty"`
	RoutingError string           `json:"routing_error,omitempty"`
}

// TemplateSummary is the listing shape of a template.
type TemplateSummary struct {
	TemplateID  string            `json:"template_id"`
	Version     int               `json:"version"`
	FileType    template.FileType `json:"file_type"`
	FilePattern string            `json:"file_pattern"`
	Sheets      []string          `json:"sheets"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"templates": len(s.deps.Templates.All()),
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	all := s.deps.Templates.All()
	out := make([]TemplateSummary, 0, len(all))
	for _, t := range all {
		sheets := make([]string, 0, len(t.Sheets))
		for _, sh := range t.Sheets {
			sheets = append(sheets, sh.Name)
		}
		out = append(out, TemplateSummary{
			TemplateID:  t.TemplateID,
			Version:     t.Version,
			FileType:    t.FileType,
			FilePattern: t.FilePattern,
			Sheets:      sheets,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "templateID")
	t, ok := s.deps.Templates.Get(id)
	if !ok {
		s.respondError(w, r, fmt.Errorf("template %q: %w", id, pipeline.ErrNoTemplate), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.limiter.Status())
}

// handleRun executes a run synchronously and returns its report. A run
// whose data failed validation is still a 200; the report says so.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", apperr.ErrInvalidRequest, err), 0)
		return
	}
	req.Dataset = strings.TrimSpace(req.Dataset)
	if req.Dataset == "" {
		s.respondError(w, r, fmt.Errorf("%w: dataset is required", apperr.ErrInvalidRequest), 0)
		return
	}
	if err := s.checkDataset(req.Dataset); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	if err := s.limiter.Acquire(r.Context()); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Run.Timeout)
	defer cancel()

	var (
		report *pipeline.Report
		err    error
	)
	if req.Expectations != "" {
		report, err = s.deps.Runner.RunSuite(ctx, req.Dataset, req.Expectations)
	} else {
		report, err = s.deps.Runner.Run(ctx, req.Dataset)
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	resp := RunResponse{Report: report}
	if s.deps.Publisher != nil {
		// Results are already committed; a routing failure is reported
		// alongside them rather than as an error.
		routed, err := s.deps.Publisher.Route(ctx, report)
		if err != nil {
			logging.FromContext(ctx).Error("routing failed", "run_id", report.RunID, "error", err)
			resp.RoutingError = apperr.FormatUserError(err)
		} else {
			resp.Routed = &routed
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// checkDataset refuses local datasets unless DATA_DIR is set, and local paths
// that would leave it. The fetcher enforces the same bound; checking here
// rejects the request before it takes a run slot.
func (s *Server) checkDataset(dataset string) error {
	loc, err := storage.ParseLocator(dataset)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidRequest, err)
	}
	if loc.Remote() {
		return nil
	}
	if s.cfg.Storage.DataDir == "" {
		return fmt.Errorf("%s: %w", dataset, storage.ErrLocalDisabled)
	}
	_, err = storage.LocalPath(loc.Key)
	return err
}
