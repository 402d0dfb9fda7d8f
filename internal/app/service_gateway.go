package app

import (
	"context"
	"errors"
	"io"
	"strings"

	"landgov/api/internal/actor"
	"landgov/api/internal/analyzer"
	"landgov/api/internal/area"
	"landgov/api/internal/export"
	"landgov/api/internal/search"
)

type AnalyzeInput struct {
	AreaID string `json:"areaId"`
}

// Report is a stored analysis artifact streamed back to the caller.
type Report struct {
	Body        io.ReadCloser
	ContentType string
}

// RunAnalysis invokes the map-overlay analyzer for one area, bounded by
// the configured timeout. Gateway failures carry the failure kind and an
// operator suggestion; only admins reach this path, so the diagnostics
// are safe to return.
func (s *Service) RunAnalysis(ctx context.Context, session Session, input AnalyzeInput) (map[string]any, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionRunAnalysis) {
		return nil, errForbidden("admin role required")
	}
	cfg, err := area.Lookup(area.ID(input.AreaID))
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}
	if !actor.InScope(caller.Role, cfg.ID) {
		return nil, errForbidden("area is outside your scope")
	}
	if s.analyzer == nil {
		return nil, errGatewayFailure("analyzer is not configured", nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.AnalyzerTimeout)
	defer cancel()

	result, err := s.analyzer.Analyze(runCtx, cfg)
	if err != nil {
		var failure *analyzer.Failure
		if errors.As(err, &failure) {
			return nil, errGatewayFailure("analysis failed: "+failure.Detail, map[string]any{
				"kind":       string(failure.Kind),
				"suggestion": failure.Suggestion,
			})
		}
		return nil, errGatewayFailure("analysis failed", nil)
	}

	return map[string]any{
		"areaId":         string(cfg.ID),
		"reportObjectId": result.ObjectID,
		"reportUrl":      result.ReportURL,
		"overlayPath":    result.OverlayPath,
	}, nil
}

// GetReport streams a stored report PDF. Admins may fetch any report;
// a citizen only the one attached to their own flagged violation.
func (s *Service) GetReport(ctx context.Context, session Session, objectID string) (Report, error) {
	caller := s.actorOf(session)
	if !caller.IsAdmin() {
		violation, err := s.store.GetFlaggedViolationByOwner(ctx, caller.Email)
		if err != nil || violation.ReportObjectID != objectID {
			return Report{}, errForbidden("report is not attached to your violation")
		}
	}
	if s.blobs == nil {
		return Report{}, errGatewayFailure("report storage is not configured", nil)
	}
	body, err := s.blobs.Get(ctx, objectID)
	if err != nil {
		return Report{}, errNotFound("report not found")
	}
	return Report{Body: body, ContentType: "application/pdf"}, nil
}

// Search runs the admin full-text search over requests and violations,
// restricted to the caller's area scope.
func (s *Service) Search(ctx context.Context, session Session, text, filterType string, limit, offset int) (search.Response, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionAdminRead) {
		return search.Response{}, errForbidden("admin role required")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	scope := actor.ScopeForRole(caller.Role)
	scopeIDs := make([]string, 0, len(scope))
	for _, id := range scope {
		scopeIDs = append(scopeIDs, string(id))
	}

	return s.search.Search(search.Query{
		Text:         strings.TrimSpace(text),
		FilterType:   search.ResultType(filterType),
		ScopeAreaIDs: scopeIDs,
		Limit:        limit,
		Offset:       offset,
	}), nil
}

// ExportAreaSummary renders the per-area allocation summary document.
func (s *Service) ExportAreaSummary(ctx context.Context, session Session, areaID, format string) (*export.Result, error) {
	caller := s.actorOf(session)
	if !actor.Can(caller.Role, actor.ActionAdminRead) {
		return nil, errForbidden("admin role required")
	}
	cfg, err := area.Lookup(area.ID(areaID))
	if err != nil {
		return nil, errInvalidArgument("unknown area", nil)
	}
	if !actor.InScope(caller.Role, cfg.ID) {
		return nil, errForbidden("area is outside your scope")
	}
	if format == "" {
		format = string(export.FormatPDF)
	}
	if format != string(export.FormatPDF) && format != string(export.FormatDOCX) {
		return nil, errInvalidArgument("format must be pdf or docx", nil)
	}
	if s.exporter == nil {
		return nil, errGatewayFailure("export is not configured", nil)
	}

	result, err := s.exporter.Export(ctx, export.Request{AreaID: cfg.ID, Format: export.Format(format)})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, errGatewayFailure("export renderer unavailable", map[string]any{
				"suggestion": "install the headless-chrome/pandoc toolchain on the API host",
			})
		}
		return nil, err
	}
	return result, nil
}
