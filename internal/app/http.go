package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"landgov/api/internal/auth"
	"landgov/api/internal/authpw"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r, false)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/admin/signup" {
		s.handleSignUp(w, r, true)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"email":         session.Email,
			"role":          session.Role,
			"areaId":        session.AreaID,
			"plotId":        session.PlotID,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Everything below requires a session.
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) < 2 || segments[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch segments[1] {
	case "areas":
		if r.Method == http.MethodGet && len(segments) == 2 {
			writeJSON(w, http.StatusOK, map[string]any{"areas": s.service.ListAreas()})
			return
		}
	case "plots":
		if r.Method == http.MethodGet && len(segments) == 2 {
			s.respondList(w, func() ([]map[string]any, error) {
				return s.service.ListPlots(r.Context(), r.URL.Query().Get("area"))
			}, "plots")
			return
		}
	case "requests":
		s.handleRequests(w, r, session, segments[2:])
		return
	case "lease":
		s.handleLease(w, r, session, segments[2:])
		return
	case "analyze":
		if r.Method == http.MethodPost && len(segments) == 2 {
			var body AnalyzeInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
				return
			}
			s.respond(w, http.StatusOK, func() (map[string]any, error) {
				return s.service.RunAnalysis(r.Context(), session, body)
			})
			return
		}
	case "reports":
		if r.Method == http.MethodGet && len(segments) == 3 {
			s.handleReport(w, r, session, segments[2])
			return
		}
	case "violations":
		s.handleViolations(w, r, session, segments[2:])
		return
	case "appeals":
		s.handleAppeals(w, r, session, segments[2:])
		return
	case "search":
		if r.Method == http.MethodGet && len(segments) == 2 {
			s.handleSearch(w, r, session)
			return
		}
	case "applications":
		s.handleApplications(w, r, session, segments[2:])
		return
	case "admin":
		s.handleAdmin(w, r, session, segments[2:])
		return
	case "export":
		if r.Method == http.MethodGet && len(segments) == 3 && segments[2] == "area-summary" {
			s.handleExport(w, r, session)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRequests(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var body SubmitRequestInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusCreated, func() (map[string]any, error) {
			return s.service.SubmitRequest(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "mine":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.MyRequests(r.Context(), session)
		}, "requests")
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "district":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.DistrictQueue(r.Context(), session)
		}, "requests")
	case r.Method == http.MethodPost && len(rest) == 2 && rest[0] == "district" && rest[1] == "decision":
		var body RequestDecisionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.DistrictDecide(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "state":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.StateQueue(r.Context(), session)
		}, "requests")
	case r.Method == http.MethodPost && len(rest) == 2 && rest[0] == "state" && rest[1] == "decision":
		var body RequestDecisionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.StateDecide(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "all":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.AllRequests(r.Context(), session)
		}, "requests")
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleLease(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "mine":
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.MyLease(r.Context(), session)
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "plot":
		plotID, err := strconv.Atoi(r.URL.Query().Get("plotId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "plotId must be a number", nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.LeaseByPlot(r.Context(), session, plotID)
		})
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "flag":
		var body FlagLeaseInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.FlagLease(r.Context(), session, body)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleViolations(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "flag":
		var body FlagViolationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.FlagViolation(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "mine":
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.MyViolation(r.Context(), session)
		})
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.ViolationsByArea(r.Context(), session, r.URL.Query().Get("area"))
		}, "violations")
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAppeals(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var body SubmitAppealInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusCreated, func() (map[string]any, error) {
			return s.service.SubmitAppeal(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "mine":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.MyAppeals(r.Context(), session)
		}, "appeals")
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "district":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.AppealsDistrictQueue(r.Context(), session)
		}, "appeals")
	case r.Method == http.MethodPost && len(rest) == 2 && rest[0] == "district" && rest[1] == "decision":
		var body AppealDecisionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.DistrictDecideAppeal(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "state":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.AppealsStateQueue(r.Context(), session)
		}, "appeals")
	case r.Method == http.MethodPost && len(rest) == 2 && rest[0] == "state" && rest[1] == "decision":
		var body AppealDecisionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.StateDecideAppeal(r.Context(), session, body)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleApplications(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodPost && len(rest) == 0:
		var body SubmitApplicationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusCreated, func() (map[string]any, error) {
			return s.service.SubmitApplication(r.Context(), session, body)
		})
	case r.Method == http.MethodGet && len(rest) == 0:
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.ListApplications(r.Context(), session)
		}, "applications")
	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "decision":
		var body ApplicationDecisionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.DecideApplication(r.Context(), session, body)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAdmin(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "users":
		s.respondList(w, func() ([]map[string]any, error) {
			return s.service.ListCitizens(r.Context(), session)
		}, "users")
	case r.Method == http.MethodPost && len(rest) == 2 && rest[0] == "users" && rest[1] == "assign":
		var body AssignPlotInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
			return
		}
		s.respond(w, http.StatusOK, func() (map[string]any, error) {
			return s.service.AssignPlot(r.Context(), session, body)
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request, session Session, objectID string) {
	report, err := s.service.GetReport(r.Context(), session, objectID)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	defer report.Body.Close()
	w.Header().Set("Content-Type", report.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, report.Body)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response, err := s.service.Search(r.Context(), session, query.Get("q"), query.Get("type"), limit, offset)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session) {
	query := r.URL.Query()
	result, err := s.service.ExportAreaSummary(r.Context(), session, query.Get("area"), query.Get("format"))
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if err := s.service.PingSessions(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["sessions"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request, admin bool) {
	var body struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		Password      string `json:"password"`
		ContactNumber string `json:"contactNumber"`
		Role          string `json:"role"`
		PlotID        string `json:"plotId"`
		AreaID        string `json:"areaId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	req := authpw.SignUpRequest{
		Name:          body.Name,
		Email:         body.Email,
		Password:      body.Password,
		ContactNumber: body.ContactNumber,
		Role:          body.Role,
		PlotID:        body.PlotID,
		AreaID:        body.AreaID,
	}

	var (
		session Session
		err     error
	)
	if admin {
		session, err = s.service.SignUpAdmin(r.Context(), req)
	} else {
		session, err = s.service.SignUp(r.Context(), req)
	}
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"email":        session.Email,
		"role":         session.Role,
		"areaId":       session.AreaID,
		"plotId":       session.PlotID,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

// respond runs one operation and writes either its payload or the mapped
// domain error.
func (s *HTTPServer) respond(w http.ResponseWriter, status int, op func() (map[string]any, error)) {
	payload, err := op()
	if err != nil {
		errStatus, code, message, details := mapError(err)
		writeError(w, errStatus, code, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) respondList(w http.ResponseWriter, op func() ([]map[string]any, error), field string) {
	items, err := op()
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{field: items})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
