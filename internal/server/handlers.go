package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/admin"
	"github.com/spigell/nexhire/internal/ingestion"
	"github.com/spigell/nexhire/internal/screening"
)

const maxBodySize = 2*ingestion.MaxSize + 1<<20

var validate = validator.New()

// analysisRequest is the body of POST /api/analyses/{action}.
type analysisRequest struct {
	Resume   string `json:"resume" validate:"required,max=200000"`
	ResumeV2 string `json:"resume_v2" validate:"max=200000"`
	Job      string `json:"job" validate:"required_without=JobURL,max=200000"`
	JobURL   string `json:"job_url" validate:"omitempty,url"`
	Skill    string `json:"skill" validate:"max=200"`
	Score    int    `json:"score" validate:"gte=0,lte=100"`
	BiasFree bool   `json:"bias_free"`
}

// requestError is a client error with its HTTP status.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleActions(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, screening.Actions())
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	action := screening.Action(r.PathValue("action"))

	req, err := decodeAnalysisRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := validate.Struct(req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	if strings.TrimSpace(req.Job) == "" {
		job, err := s.fetchJob(ctx, req.JobURL)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Job = job
	}

	out, err := s.analyzer.Run(ctx, action, screening.Input{
		UserID:   userID(r.Context()),
		Resume:   req.Resume,
		ResumeV2: req.ResumeV2,
		Job:      req.Job,
		Skill:    req.Skill,
		Score:    req.Score,
		BiasFree: req.BiasFree,
	})
	if out == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("analysis degraded",
			zap.String("action", string(action)),
			zap.String("reason", out.Reason),
			zap.Error(err),
		)
	}

	jsonOK(w, out)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		jsonError(w, "activity log is not configured", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			jsonError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list activity records", zap.Error(err))
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	jsonOK(w, records)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			unauthorized(w)
			return
		}

		valid, err := s.admin.Verify(user, pass)
		switch {
		case errors.Is(err, admin.ErrNotConfigured):
			jsonError(w, "admin console is disabled", http.StatusNotFound)
			return
		case err != nil:
			s.logger.Error("verify admin credentials", zap.Error(err))
			jsonError(w, "internal error", http.StatusInternalServerError)
			return
		case !valid:
			s.logger.Warn("admin login failed", zap.String("username", user))
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="nexhire admin"`)
	jsonError(w, "invalid credentials", http.StatusUnauthorized)
}

func decodeAnalysisRequest(w http.ResponseWriter, r *http.Request) (*analysisRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = "application/json"
	}

	switch mediaType {
	case "application/json":
		var req analysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf("invalid JSON body: %v", err)}
		}
		return &req, nil
	case "multipart/form-data":
		return decodeMultipart(r)
	default:
		return nil, &requestError{status: http.StatusUnsupportedMediaType, msg: "expected application/json or multipart/form-data"}
	}
}

func decodeMultipart(r *http.Request) (*analysisRequest, error) {
	if err := r.ParseMultipartForm(ingestion.MaxSize); err != nil {
		return nil, &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf("invalid form: %v", err)}
	}

	req := &analysisRequest{
		Resume:   r.FormValue("resume"),
		ResumeV2: r.FormValue("resume_v2"),
		Job:      r.FormValue("job"),
		JobURL:   r.FormValue("job_url"),
		Skill:    r.FormValue("skill"),
	}

	if raw := strings.TrimSpace(r.FormValue("score")); raw != "" {
		score, err := strconv.Atoi(raw)
		if err != nil {
			return nil, &requestError{status: http.StatusBadRequest, msg: "score must be an integer"}
		}
		req.Score = score
	}
	if raw := strings.TrimSpace(r.FormValue("bias_free")); raw != "" {
		biasFree, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &requestError{status: http.StatusBadRequest, msg: "bias_free must be a boolean"}
		}
		req.BiasFree = biasFree
	}

	for field, target := range map[string]*string{
		"resume_file":    &req.Resume,
		"resume_v2_file": &req.ResumeV2,
	} {
		text, err := formFileText(r, field)
		if err != nil {
			return nil, err
		}
		if text != "" {
			*target = text
		}
	}

	return req, nil
}

func formFileText(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf("%s: %v", field, err)}
	}
	defer file.Close()

	text, err := ingestion.Read(header.Filename, header.Header.Get("Content-Type"), file)
	switch {
	case err == nil:
		return text, nil
	case errors.Is(err, ingestion.ErrUnsupported):
		return "", &requestError{status: http.StatusUnsupportedMediaType, msg: fmt.Sprintf("%s: %v", field, err)}
	case errors.Is(err, ingestion.ErrTooLarge):
		return "", &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("%s: %v", field, err)}
	default:
		return "", &requestError{status: http.StatusUnprocessableEntity, msg: fmt.Sprintf("%s: %v", field, err)}
	}
}

func (s *Server) fetchJob(ctx context.Context, rawURL string) (string, error) {
	text, err := s.jobs.FetchJob(ctx, rawURL)
	switch {
	case err == nil:
		s.logger.Debug("job posting fetched", zap.Int("length", len(text)))
		return text, nil
	case errors.Is(err, ingestion.ErrInvalidURL), errors.Is(err, ingestion.ErrForbiddenAddress):
		return "", &requestError{status: http.StatusBadRequest, msg: err.Error()}
	default:
		s.logger.Warn("fetch job posting", zap.Error(err))
		return "", &requestError{status: http.StatusUnprocessableEntity, msg: fmt.Sprintf("could not read the job posting: %v", err)}
	}
}

func writeError(w http.ResponseWriter, err error) {
	var (
		reqErr      *requestError
		inputErr    *screening.InputError
		unknownErr  *screening.UnknownActionError
		validErrs   validator.ValidationErrors
		maxBytesErr *http.MaxBytesError
	)

	switch {
	case errors.As(err, &reqErr):
		jsonError(w, reqErr.msg, reqErr.status)
	case errors.As(err, &inputErr):
		jsonError(w, inputErr.Error(), http.StatusBadRequest)
	case errors.As(err, &unknownErr):
		jsonError(w, unknownErr.Error(), http.StatusNotFound)
	case errors.As(err, &validErrs):
		jsonError(w, validationMessage(validErrs), http.StatusBadRequest)
	case errors.As(err, &maxBytesErr):
		jsonError(w, "request body is too large", http.StatusRequestEntityTooLarge)
	default:
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func validationMessage(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
