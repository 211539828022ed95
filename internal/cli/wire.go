package cli

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/JonMunkholm/dqgate/internal/expectation"
	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/quality"
	"github.com/JonMunkholm/dqgate/internal/storage"
	"github.com/JonMunkholm/dqgate/internal/tabular"
	"github.com/JonMunkholm/dqgate/internal/template"
)

// services is everything a validation run needs.
type services struct {
	templates    *template.Registry
	fetcher      *storage.Fetcher
	files        billy.Filesystem
	s3           storage.S3API
	orchestrator *pipeline.Orchestrator
}

// wireOptions selects which external pieces to open.
type wireOptions struct {
	templates bool // load TEMPLATES_DIR
	s3        bool // open the object store
	database  bool // open persistence
	dataRoot  bool // confine local datasets to DATA_DIR instead of host paths
}

func (o *RootOptions) wire(ctx context.Context, w wireOptions) (*services, error) {
	cfg := o.Config
	svc := &services{}

	var err error
	if w.templates {
		svc.templates, err = template.LoadDir(cfg.Templates.Dir)
	} else {
		svc.templates, err = template.NewRegistry()
	}
	if err != nil {
		return nil, err
	}

	if w.s3 {
		if svc.s3, err = o.Backend.ObjectStore(ctx); err != nil {
			return nil, err
		}
	}
	if w.dataRoot {
		if cfg.Storage.DataDir != "" {
			if svc.files, err = storage.DataFS(cfg.Storage.DataDir); err != nil {
				return nil, err
			}
		}
		svc.fetcher = storage.NewFetcher(svc.s3, svc.files, cfg.Run.MaxFileSize)
	} else {
		svc.files = o.Backend.Files()
		svc.fetcher = storage.NewFetcher(svc.s3, svc.files, cfg.Run.MaxFileSize).WithHostPaths()
	}

	var persistence pipeline.Persistence
	if w.database {
		if persistence, err = o.Backend.Persistence(ctx); err != nil {
			return nil, err
		}
	}

	suites := expectation.NewEngine(expectation.NewStore(cfg.Templates.SuitesDir))
	svc.orchestrator = pipeline.New(pipeline.Deps{
		Resolver:    svc.templates,
		Parsers:     tabular.NewRegistry(),
		Fetcher:     svc.fetcher,
		Evaluator:   quality.NewEngine(suites),
		Persistence: persistence,
	})
	return svc, nil
}

func isRemote(locator string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(locator)), "s3://")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
