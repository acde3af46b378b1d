package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/codearena/judge/internal/services"
	"github.com/codearena/judge/internal/store"
	"github.com/codearena/judge/internal/testcases"
	"github.com/codearena/judge/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxArchiveBytes  = 256 << 20
	formFieldArchive = "archive"
	formFieldTitle   = "title"
)

// ArchiveFile represents an uploaded test-case archive.
type ArchiveFile struct {
	Filename string
	Data     []byte
}

// ProblemHandler provides HTTP handlers for problems.
type ProblemHandler struct {
	problemService *services.ProblemService
}

// NewProblemHandler constructs a handler with the provided service.
func NewProblemHandler(problemService *services.ProblemService) *ProblemHandler {
	return &ProblemHandler{problemService: problemService}
}

// ProblemRouter registers problem routes on the given router.
func ProblemRouter(
	r chi.Router,
	problemService *services.ProblemService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewProblemHandler(problemService)

	r.Get("/", handler.ListProblems)
	r.Route("/{problemID}", func(r chi.Router) {
		r.Get("/", handler.GetProblem)
		r.With(authMiddleware, RequireAdmin).Put("/testcases", handler.UploadTestCases)
	})
}

func (h *ProblemHandler) ListProblems(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.problemService.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list problems")
		return
	}

	writeJSON(w, http.StatusOK, ProblemListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ProblemHandler) GetProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem, err := h.problemService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch problem")
		return
	}

	writeJSON(w, http.StatusOK, problem)
}

// UploadTestCases replaces the problem's test-case archive.
func (h *ProblemHandler) UploadTestCases(w http.ResponseWriter, r *http.Request) {
	id, err := parseProblemID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	archive, err := parseArchiveFile(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	title := strings.TrimSpace(r.FormValue(formFieldTitle))

	problem, err := h.problemService.UploadTestCases(r.Context(), id, title, archive.Filename, archive.Data)
	if err != nil {
		switch {
		case errors.Is(err, testcases.ErrMalformed), errors.Is(err, testcases.ErrNoTestCases):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, services.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to store test cases")
		}
		return
	}

	writeJSON(w, http.StatusOK, problem)
}

// ProblemListResponse is the paginated list response payload.
type ProblemListResponse struct {
	Items []types.Problem `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func parseArchiveFile(form *multipart.Form) (ArchiveFile, error) {
	if form == nil {
		return ArchiveFile{}, errors.New("missing form data")
	}

	files := form.File[formFieldArchive]
	if len(files) == 0 {
		return ArchiveFile{}, errors.New("archive file is required")
	}
	if len(files) > 1 {
		return ArchiveFile{}, errors.New("only one archive file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return ArchiveFile{}, fmt.Errorf("failed to read archive file: %w", err)
	}

	data, err := readFileLimited(file, maxArchiveBytes)
	_ = file.Close()
	if err != nil {
		return ArchiveFile{}, err
	}

	return ArchiveFile{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}
