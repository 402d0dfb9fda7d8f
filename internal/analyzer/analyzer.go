// Package analyzer invokes the external map-overlay analysis tool and
// stores its PDF report in the blob store.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"landgov/api/internal/area"
	"landgov/api/internal/util"
)

// FailureKind classifies why an analysis run could not produce a report.
type FailureKind string

const (
	KindConfigMissing FailureKind = "config_missing"
	KindInputMissing  FailureKind = "input_missing"
	KindExecFailed    FailureKind = "exec_failed"
	KindOutputMissing FailureKind = "output_missing"
	KindStorageFailed FailureKind = "storage_failed"
)

// Failure is a gateway error. Detail is safe to show to admins; the
// Suggestion tells the operator what to fix.
type Failure struct {
	Kind       FailureKind
	Detail     string
	Suggestion string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("analyzer %s: %s", f.Kind, f.Detail)
}

// Result is the success shape shared by the real and mock gateways.
type Result struct {
	ObjectID    string
	ReportURL   string
	OverlayPath string
}

// Uploader is the slice of the blob store the gateway needs.
type Uploader interface {
	Put(ctx context.Context, objectID string, data []byte, contentType string) error
	PresignURL(ctx context.Context, objectID string, expiry time.Duration) (string, error)
}

type Config struct {
	Bin       string
	Script    string
	AssetsDir string
	OutDir    string
	PDFName   string
	ImgName   string
	Mock      bool
	// MockDelay imitates the runtime of a real analysis pass so callers
	// exercise their timeout handling in mock mode too.
	MockDelay time.Duration
	Timeout   time.Duration
}

type Gateway struct {
	cfg   Config
	blobs Uploader
}

func New(cfg Config, blobs Uploader) *Gateway {
	if cfg.MockDelay <= 0 {
		cfg.MockDelay = 2 * time.Second
	}
	return &Gateway{cfg: cfg, blobs: blobs}
}

// Analyze runs the overlay analysis for one area and uploads the PDF
// report. Every failure path returns a *Failure; the caller decides how
// much detail each audience sees. There is no retry here.
func (g *Gateway) Analyze(ctx context.Context, cfg area.Config) (Result, error) {
	if g.cfg.Mock {
		return g.analyzeMock(ctx, cfg)
	}

	if g.cfg.Bin == "" || g.cfg.Script == "" {
		return Result{}, &Failure{
			Kind:       KindConfigMissing,
			Detail:     fmt.Sprintf("analyzer binary=%q script=%q", g.cfg.Bin, g.cfg.Script),
			Suggestion: "set MAP_ANALYSIS_BIN and MAP_ANALYSIS_SCRIPT_PATH",
		}
	}
	if _, err := os.Stat(g.cfg.Script); err != nil {
		return Result{}, &Failure{
			Kind:       KindConfigMissing,
			Detail:     fmt.Sprintf("analysis script not found at %s", g.cfg.Script),
			Suggestion: "check MAP_ANALYSIS_SCRIPT_PATH",
		}
	}

	officialPath := filepath.Join(g.cfg.AssetsDir, cfg.OfficialMap)
	satellitePath := filepath.Join(g.cfg.AssetsDir, cfg.SatelliteMap)
	for _, input := range []string{officialPath, satellitePath} {
		if _, err := os.Stat(input); err != nil {
			return Result{}, &Failure{
				Kind:       KindInputMissing,
				Detail:     fmt.Sprintf("input image not found: %s", input),
				Suggestion: "place the official and satellite images for " + string(cfg.ID) + " under MAP_ANALYSIS_ASSETS_DIR",
			}
		}
	}

	outDir := filepath.Join(g.cfg.OutDir, string(cfg.ID))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, &Failure{
			Kind:       KindExecFailed,
			Detail:     fmt.Sprintf("create output dir: %v", err),
			Suggestion: "check MAP_ANALYSIS_OUTPUT_DIR permissions",
		}
	}

	runCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, g.cfg.Bin, g.cfg.Script, officialPath, satellitePath, outDir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("timed out after %s", g.cfg.Timeout)
		} else if detail == "" {
			detail = err.Error()
		}
		return Result{}, &Failure{
			Kind:       KindExecFailed,
			Detail:     detail,
			Suggestion: "run the analysis script by hand with the same arguments",
		}
	}

	pdfPath := filepath.Join(outDir, g.cfg.PDFName)
	pdfBytes, err := os.ReadFile(pdfPath)
	if err != nil {
		return Result{}, &Failure{
			Kind:       KindOutputMissing,
			Detail:     fmt.Sprintf("expected report at %s", pdfPath),
			Suggestion: "the script exited 0 but produced no PDF; check its output naming",
		}
	}

	return g.store(ctx, cfg, pdfBytes, filepath.Join(outDir, g.cfg.ImgName))
}

// analyzeMock returns a canned artifact after a fixed delay. Same success
// shape as the real path, including the blob upload.
func (g *Gateway) analyzeMock(ctx context.Context, cfg area.Config) (Result, error) {
	select {
	case <-time.After(g.cfg.MockDelay):
	case <-ctx.Done():
		return Result{}, &Failure{
			Kind:       KindExecFailed,
			Detail:     "mock analysis cancelled: " + ctx.Err().Error(),
			Suggestion: "increase the analysis timeout",
		}
	}

	report := []byte("%PDF-1.4\n% mock encroachment report for " + string(cfg.ID) + "\n%%EOF\n")
	return g.store(ctx, cfg, report, filepath.Join(g.cfg.OutDir, string(cfg.ID), g.cfg.ImgName))
}

func (g *Gateway) store(ctx context.Context, cfg area.Config, pdf []byte, overlayPath string) (Result, error) {
	if g.blobs == nil {
		return Result{}, &Failure{
			Kind:       KindStorageFailed,
			Detail:     "no report store configured",
			Suggestion: "configure the MinIO endpoint and credentials",
		}
	}
	objectID := util.NewID("report")
	if err := g.blobs.Put(ctx, objectID, pdf, "application/pdf"); err != nil {
		return Result{}, &Failure{
			Kind:       KindStorageFailed,
			Detail:     fmt.Sprintf("upload report: %v", err),
			Suggestion: "check the object store endpoint and credentials",
		}
	}

	reportURL, err := g.blobs.PresignURL(ctx, objectID, 24*time.Hour)
	if err != nil {
		// The report is stored; a missing presigned URL is not fatal.
		reportURL = ""
	}

	return Result{
		ObjectID:    objectID,
		ReportURL:   reportURL,
		OverlayPath: overlayPath,
	}, nil
}
