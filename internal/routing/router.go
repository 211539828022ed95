// Package routing files a finished run: the raw dataset is copied under a
// passed/ or failed/ prefix and the full report is written as JSON under
// validation-results/.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/storage"
	"github.com/JonMunkholm/dqgate/internal/template"
)

const (
	PrefixPassed  = "passed"
	PrefixFailed  = "failed"
	PrefixResults = "validation-results"

	// TimestampLayout is filesystem- and S3-key-safe.
	TimestampLayout = "2006-01-02T15-04-05"

	shortIDLen = 8
)

// Fetcher re-reads the raw dataset. *storage.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, loc storage.Locator) ([]byte, error)
}

// Router writes run artifacts to a sink.
type Router struct {
	sink    storage.Sink
	fetcher Fetcher
	now     func() time.Time
}

// New returns a router writing to sink.
func New(sink storage.Sink, fetcher Fetcher) *Router {
	return &Router{
		sink:    sink,
		fetcher: fetcher,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the clock used to stamp artifact names.
func (r *Router) WithClock(now func() time.Time) *Router {
	r.now = now
	return r
}

// Routed lists the keys written for a run.
type Routed struct {
	DatasetKey string `json:"dataset_key"`
	ResultKey  string `json:"result_key"`
}

// Route writes the result JSON, then copies the dataset under the status
// prefix.
func (r *Router) Route(ctx context.Context, report *pipeline.Report) (Routed, error) {
	loc, err := storage.ParseLocator(report.InputKey)
	if err != nil {
		return Routed{}, err
	}

	name := artifactName(r.now(), report.RunID, loc.Name())
	prefix := PrefixFailed
	if report.Success {
		prefix = PrefixPassed
	}
	out := Routed{
		DatasetKey: prefix + "/" + name,
		ResultKey:  PrefixResults + "/" + name + ".validation.json",
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return Routed{}, fmt.Errorf("encode report: %w", err)
	}
	if err := r.sink.Put(ctx, out.ResultKey, body, "application/json"); err != nil {
		return Routed{}, fmt.Errorf("write validation result: %w", err)
	}

	data, err := r.fetcher.Fetch(ctx, loc)
	if err != nil {
		return Routed{}, fmt.Errorf("re-read dataset: %w", err)
	}
	if err := r.sink.Put(ctx, out.DatasetKey, data, contentType(loc.Name())); err != nil {
		return Routed{}, fmt.Errorf("route dataset: %w", err)
	}
	return out, nil
}

// artifactName stamps name with the time and a short run id, so two runs of
// the same file within one second do not overwrite each other.
func artifactName(at time.Time, runID, name string) string {
	stamp := at.Format(TimestampLayout)
	if id := shortID(runID); id != "" {
		stamp += "_" + id
	}
	return stamp + "_" + name
}

func shortID(runID string) string {
	id := strings.ReplaceAll(runID, "-", "")
	if len(id) > shortIDLen {
		id = id[:shortIDLen]
	}
	return id
}

func contentType(name string) string {
	if pipeline.FileTypeFor(name) == template.FileExcel {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}
