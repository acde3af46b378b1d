package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/codearena/judge/internal/services"
	"github.com/codearena/judge/internal/store"
	"github.com/codearena/judge/internal/testcases"
	"github.com/codearena/judge/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxSourceBytes    = 1 << 20
	formFieldCodeFile = "codeFile"
)

// SubmissionHandler serves submission and history endpoints.
type SubmissionHandler struct {
	evaluator         *services.Evaluator
	submissionService *services.SubmissionService
}

func NewSubmissionHandler(evaluator *services.Evaluator, submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{
		evaluator:         evaluator,
		submissionService: submissionService,
	}
}

// SubmissionRouter registers submission routes. Every route requires auth.
func SubmissionRouter(
	r chi.Router,
	evaluator *services.Evaluator,
	submissionService *services.SubmissionService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewSubmissionHandler(evaluator, submissionService)

	r.Use(authMiddleware)
	r.Post("/", handler.Submit)
	r.Get("/", handler.ListSubmissions)
	r.Get("/solved", handler.SolvedProblems)
	r.Get("/latest/{problemID}", handler.LatestSubmission)
}

// SubmitRequest is the JSON body of a submission. Multipart requests carry
// the same fields as form values, with the source optionally in codeFile.
type SubmitRequest struct {
	ProblemID  int    `json:"problemId"`
	LanguageID int    `json:"languageId"`
	Code       string `json:"code"`
}

// SubmissionListResponse is the paginated history payload.
type SubmissionListResponse struct {
	Items []types.SubmissionRecord `json:"items"`
	Page  int                      `json:"page"`
	Limit int                      `json:"limit"`
	Total int                      `json:"total"`
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, err := parseSubmitRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ProblemID < 1 || req.LanguageID == 0 {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	result, err := h.evaluator.Submit(r.Context(), services.SubmissionInput{
		UserID:     userID,
		ProblemID:  req.ProblemID,
		LanguageID: types.LanguageID(req.LanguageID),
		SourceCode: req.Code,
	})
	if err != nil {
		writeEvaluationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.submissionService.ListByUser(r.Context(), userID, offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}

	writeJSON(w, http.StatusOK, SubmissionListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *SubmissionHandler) LatestSubmission(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	problemID, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.submissionService.Latest(r.Context(), userID, problemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no submissions found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch submission")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (h *SubmissionHandler) SolvedProblems(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ids, err := h.submissionService.SolvedProblems(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch solved problems")
		return
	}

	writeJSON(w, http.StatusOK, map[string][]int{"problemIds": ids})
}

// ListLanguages returns the language allow-list.
func ListLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.Languages())
}

func parseSubmitRequest(r *http.Request) (SubmitRequest, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var req SubmitRequest
		decoder := json.NewDecoder(io.LimitReader(r.Body, maxSourceBytes+4096))
		if err := decoder.Decode(&req); err != nil {
			return SubmitRequest{}, errors.New("invalid request")
		}
		return req, nil
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return SubmitRequest{}, errors.New("invalid multipart form")
	}

	problemID, err := parseOptionalInt(r.FormValue("problemId"))
	if err != nil {
		return SubmitRequest{}, errors.New("invalid problem id")
	}
	languageID, err := parseOptionalInt(r.FormValue("languageId"))
	if err != nil {
		return SubmitRequest{}, errors.New("invalid language id")
	}

	code := r.FormValue("code")
	if files := r.MultipartForm.File[formFieldCodeFile]; len(files) > 0 {
		file, err := files[0].Open()
		if err != nil {
			return SubmitRequest{}, errors.New("failed to read code file")
		}
		data, err := readFileLimited(file, maxSourceBytes)
		_ = file.Close()
		if err != nil {
			return SubmitRequest{}, err
		}
		code = string(data)
	}

	return SubmitRequest{
		ProblemID:  problemID,
		LanguageID: languageID,
		Code:       code,
	}, nil
}

func parseOptionalInt(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}

// writeEvaluationError maps fatal evaluation errors to HTTP statuses.
func writeEvaluationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidLanguage):
		writeError(w, http.StatusBadRequest, "unsupported language")
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "source code is required")
	case errors.Is(err, services.ErrNoTestCases):
		writeError(w, http.StatusBadRequest, "no valid test cases found")
	case errors.Is(err, testcases.ErrNotFound):
		writeError(w, http.StatusNotFound, "test cases not found")
	case errors.Is(err, testcases.ErrMalformed):
		writeError(w, http.StatusUnprocessableEntity, "test case archive is malformed")
	default:
		writeError(w, http.StatusInternalServerError, "failed to evaluate submission")
	}
}
