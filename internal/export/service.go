// Package export orchestrates the full customer-export workflow: resolve
// configuration and scope, queue the remote job, poll, download, and parse
// the workbook into normalized rows.
package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"customer-export/internal/config"
	"customer-export/internal/diagnostics"
	"customer-export/internal/metrics"
	"customer-export/internal/misa"
	"customer-export/internal/odoo"
	"customer-export/internal/scope"
	"customer-export/internal/workbook"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Artifact is the downloaded report file as served to callers.
type Artifact struct {
	Name        string
	ContentType string
	Body        []byte
}

// Metadata describes one completed run for diagnostics.
type Metadata struct {
	RunID      string `json:"runId"`
	ExportID   string `json:"exportId"`
	DatabaseID string `json:"databaseId"`
	BranchID   string `json:"branchId"`
	UserID     string `json:"userId"`
	SheetName  string `json:"sheetName"`
	RowCount   int    `json:"rowCount"`
	SourceURL  string `json:"sourceUrl"`
	FileToken  string `json:"fileToken,omitempty"`
}

// Result carries both the normalized rows and the raw artifact, so callers
// can serve either without a second run.
type Result struct {
	Rows     []workbook.Row `json:"rows"`
	Metadata Metadata       `json:"metadata"`
	Artifact *Artifact      `json:"-"`
}

type Service struct {
	cfg        *config.Config
	scope      *scope.Loader
	snapshots  *diagnostics.Store
	odooClient *odoo.Client
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewService(cfg *config.Config, scopeLoader *scope.Loader, snapshots *diagnostics.Store, logger zerolog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		scope:     scopeLoader,
		snapshots: snapshots,
		odooClient: odoo.New(odoo.Config{
			BaseURL: cfg.Odoo.BaseURL,
			Cookie:  cfg.Odoo.Cookie,
		}, logger),
		logger: logger,
	}
}

// identifiers are the tenant ids for one run: config overrides win, the
// scope context fills the rest.
type identifiers struct {
	databaseID string
	branchID   string
	userID     string
}

func (s *Service) resolveIdentifiers(ctx *scope.Context) identifiers {
	ids := identifiers{
		databaseID: s.cfg.Misa.DatabaseID,
		branchID:   s.cfg.Misa.BranchID,
		userID:     s.cfg.Misa.UserID,
	}
	if ids.databaseID == "" {
		ids.databaseID = ctx.DatabaseID()
	}
	if ids.branchID == "" {
		ids.branchID = ctx.BranchID()
	}
	if ids.userID == "" {
		ids.userID = ctx.UserID()
	}
	return ids
}

// Run executes the whole export workflow once. Any stage's failure aborts
// the run; there is no partial retry of a completed stage.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Logger()

	scopeCtx, err := s.scope.Load()
	if err != nil {
		metrics.IncExportRun("config_error")
		return nil, err
	}

	ids := s.resolveIdentifiers(scopeCtx)
	if err := config.EnsureRequired([]config.Required{
		{Name: "TOKEN", Value: s.cfg.Misa.Token},
		{Name: "DEVICE", Value: s.cfg.Misa.Device},
		{Name: "DATABASE_ID", Value: ids.databaseID},
		{Name: "BRANCH_ID", Value: ids.branchID},
		{Name: "USER_ID", Value: ids.userID},
	}); err != nil {
		metrics.IncExportRun("config_error")
		return nil, err
	}

	client := misa.New(misa.Config{
		BaseURL:       s.cfg.Misa.BaseURL,
		Token:         s.cfg.Misa.Token,
		Device:        s.cfg.Misa.Device,
		ContextHeader: scopeCtx.String(),
		Cookie:        s.cfg.Misa.Cookie,
		PollMax:       s.cfg.Misa.PollMax,
		PollInterval:  s.cfg.Misa.PollInterval(),
		HTTPClient:    s.httpClient,
	}, logger)

	exportID, err := client.Queue(ctx, misa.BuildCustomerExportRequest(s.cfg.Misa.BaseURL, ids.branchID, s.cfg.Misa.FileType))
	if err != nil {
		s.recordFailure(ctx, runID, "", "queue", err)
		return nil, err
	}

	pollResult, err := client.Poll(ctx, exportID)
	if err != nil {
		s.recordFailure(ctx, runID, exportID, "poll", err)
		return nil, err
	}
	metrics.ObservePollAttempts(pollResult.Attempts)

	outName := s.cfg.Misa.FileName + "." + s.cfg.Misa.FileType
	candidates := client.ResolveDownloadCandidates(pollResult.FileURL, pollResult.FileToken, ids.databaseID, outName)

	download, err := client.Download(ctx, candidates, pollResult.LastSnapshot)
	if err != nil {
		s.recordFailure(ctx, runID, exportID, "download", err)
		return nil, err
	}
	for range download.Attempts {
		metrics.IncDownloadFallback()
	}

	if s.cfg.Exports.Retain {
		if err := s.retainArtifact(outName, download.Body); err != nil {
			logger.Warn().Err(err).Msg("unable to retain artifact")
		}
	}

	extracted, err := workbook.Extract(download.Body)
	if err != nil {
		s.recordFailure(ctx, runID, exportID, "parse", err)
		return nil, err
	}

	metrics.IncExportRun("success")
	logger.Info().
		Str("export_id", exportID).
		Int("rows", extracted.RowCount).
		Str("source_url", download.SourceURL).
		Msg("export run finished")

	return &Result{
		Rows: extracted.Rows,
		Metadata: Metadata{
			RunID:      runID,
			ExportID:   exportID,
			DatabaseID: ids.databaseID,
			BranchID:   ids.branchID,
			UserID:     ids.userID,
			SheetName:  extracted.SheetName,
			RowCount:   extracted.RowCount,
			SourceURL:  download.SourceURL,
			FileToken:  pollResult.FileToken,
		},
		Artifact: &Artifact{
			Name:        outName,
			ContentType: contentTypeFor(s.cfg.Misa.FileType),
			Body:        download.Body,
		},
	}, nil
}

// FetchOdooCustomers runs the single-round-trip CRM query path.
func (s *Service) FetchOdooCustomers(ctx context.Context) (*odoo.FetchResult, error) {
	if err := config.EnsureRequired([]config.Required{
		{Name: "ODOO_COOKIE", Value: s.cfg.Odoo.Cookie},
	}); err != nil {
		return nil, err
	}

	domain := odoo.BuildDomain(s.cfg.Odoo.Domain, s.cfg.Odoo.OnlyActive, s.logger)

	return s.odooClient.Fetch(ctx, odoo.QueryParams{
		RequestID:  s.cfg.Odoo.RequestID,
		Limit:      s.cfg.Odoo.Limit,
		Offset:     s.cfg.Odoo.Offset,
		CountLimit: s.cfg.Odoo.CountLimit,
		Order:      s.cfg.Odoo.Order,
		Domain:     domain,
		OnlyActive: s.cfg.Odoo.OnlyActive,
		Scope: odoo.Scope{
			Lang:              s.cfg.Odoo.Lang,
			TZ:                s.cfg.Odoo.TZ,
			UID:               s.cfg.Odoo.UID,
			AllowedCompanyIDs: s.cfg.Odoo.CompanyIDs,
			CurrentCompanyID:  s.cfg.Odoo.CompanyID,
		},
	})
}

func (s *Service) retainArtifact(name string, body []byte) error {
	if err := os.MkdirAll(s.cfg.Exports.Path, 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(s.cfg.Exports.Path, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	s.logger.Info().Str("path", path).Msg("artifact retained")
	return nil
}

// recordFailure persists whatever diagnostic payload the error carries and
// counts the outcome.
func (s *Service) recordFailure(ctx context.Context, runID, exportID, stage string, cause error) {
	metrics.IncExportRun(stage + "_error")

	snap := diagnostics.Snapshot{
		RunID:     runID,
		ExportID:  exportID,
		Stage:     stage,
		Message:   cause.Error(),
		CreatedAt: time.Now().UTC(),
	}

	var queueErr *misa.QueueError
	var notReady *misa.NotReadyError
	var dlErr *misa.DownloadError
	switch {
	case errors.As(cause, &queueErr):
		snap.LastPoll = queueErr.Body
	case errors.As(cause, &notReady):
		snap.LastPoll = notReady.LastSnapshot
	case errors.As(cause, &dlErr):
		snap.LastPoll = dlErr.LastSnapshot
		snap.Attempts = dlErr.Attempts
	}

	if err := s.snapshots.Save(ctx, snap); err != nil {
		s.logger.Warn().Err(err).Str("run_id", runID).Msg("unable to persist diagnostic snapshot")
	}
	s.logger.Error().Err(cause).Str("run_id", runID).Str("stage", stage).Msg("export run failed")
}

func contentTypeFor(fileType string) string {
	switch fileType {
	case "xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
