package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codearena/judge/config"
	"github.com/codearena/judge/internal/services"
	"github.com/codearena/judge/internal/storage"
	"github.com/codearena/judge/internal/store"
	"github.com/codearena/judge/internal/testcases"
	"github.com/codearena/judge/types"
	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// echoEngine runs every program as `cat`.
type echoEngine struct{}

func (echoEngine) Submit(ctx context.Context, req types.ExecutionRequest) (types.ExecutionToken, error) {
	return types.ExecutionToken(req.Stdin), nil
}

func (echoEngine) Await(ctx context.Context, token types.ExecutionToken) (types.ExecutionOutcome, error) {
	stdout := string(token)
	return types.ExecutionOutcome{
		Status:      types.StatusAccepted,
		Description: "Accepted",
		Stdout:      &stdout,
	}, nil
}

type memoryProblems struct {
	mu       sync.Mutex
	problems map[int]types.Problem
}

func (m *memoryProblems) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Problem, 0, len(m.problems))
	for _, p := range m.problems {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memoryProblems) Get(ctx context.Context, id int) (types.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[id]
	if !ok {
		return types.Problem{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memoryProblems) Upsert(ctx context.Context, problem types.Problem) (types.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	problem.UpdatedAt = time.Now().UTC()
	m.problems[problem.ID] = problem
	return problem, nil
}

type memorySubmissions struct {
	mu      sync.Mutex
	records []types.SubmissionRecord
}

func (m *memorySubmissions) Append(ctx context.Context, record types.SubmissionRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, record)
	return record.ID, nil
}

func (m *memorySubmissions) Latest(ctx context.Context, userID, problemID int) (types.SubmissionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].UserID == userID && m.records[i].ProblemID == problemID {
			return m.records[i], nil
		}
	}
	return types.SubmissionRecord{}, store.ErrNotFound
}

func (m *memorySubmissions) ListByUser(ctx context.Context, userID, offset, limit int) ([]types.SubmissionRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.SubmissionRecord
	for _, r := range m.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *memorySubmissions) SolvedProblems(ctx context.Context, userID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, r := range m.records {
		if r.UserID == userID && r.Report.AllPassed {
			out = append(out, r.ProblemID)
		}
	}
	return out, nil
}

type testAPI struct {
	router      *chi.Mux
	evaluator   *services.Evaluator
	archives    *testcases.Repository
	submissions *memorySubmissions
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	local, err := storage.NewLocalDir(t.TempDir())
	require.NoError(t, err)
	archives := testcases.NewRepository(storage.NewStorage(local))

	submissions := &memorySubmissions{}
	problemService := services.NewProblemService(&memoryProblems{problems: map[int]types.Problem{}}, archives, nil, nil)
	submissionService := services.NewSubmissionService(submissions, nil, "", nil)
	evaluator := services.NewEvaluator(config.EvaluationConfig{MaxConcurrentTestCases: 2}, archives, echoEngine{}, submissionService, nil, nil)

	auth := RequireAuth(testSecret)
	router := chi.NewRouter()
	router.Get("/languages", ListLanguages)
	router.Route("/problems", func(r chi.Router) {
		ProblemRouter(r, problemService, auth)
	})
	router.Route("/submissions", func(r chi.Router) {
		SubmissionRouter(r, evaluator, submissionService, auth)
	})

	return &testAPI{
		router:      router,
		evaluator:   evaluator,
		archives:    archives,
		submissions: submissions,
	}
}

func (a *testAPI) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) seedArchive(t *testing.T, problemID int, pairs ...string) {
	t.Helper()
	_, _, err := a.archives.SaveArchive(context.Background(), problemID, "tests.zip", buildZip(t, pairs...))
	require.NoError(t, err)
}

func bearer(t *testing.T, userID int, role string) string {
	t.Helper()
	token, err := IssueToken(userID, role, []byte(testSecret), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

// buildZip writes name/content pairs into a zip archive.
func buildZip(t *testing.T, pairs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i+1 < len(pairs); i += 2 {
		w, err := zw.Create(pairs[i])
		require.NoError(t, err)
		_, err = w.Write([]byte(pairs[i+1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestListLanguages(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/languages", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	langs := decode[[]types.Language](t, rec)
	require.Len(t, langs, 5)
	require.Equal(t, types.LanguageC, langs[0].ID)
}

func TestSubmissionsRequireToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/submissions", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/submissions", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = api.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := IssueToken(1, "", []byte("other-secret"), time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/submissions", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = api.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitJSON(t *testing.T) {
	api := newTestAPI(t)
	api.seedArchive(t, 1, "1.in", "hello\n", "1.out", "hello\n", "2.in", "world", "2.out", "world")

	req := jsonRequest(t, http.MethodPost, "/submissions", SubmitRequest{
		ProblemID:  1,
		LanguageID: int(types.LanguagePython),
		Code:       "print(input())",
	})
	req.Header.Set("Authorization", bearer(t, 7, ""))
	rec := api.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[types.SubmissionResult](t, rec)
	require.True(t, result.AllPassed)
	require.Equal(t, 2, result.TotalCount)
	require.Equal(t, "Passed 2 out of 2 test cases.", result.Summary)
	require.Equal(t, services.AnalysisUnavailable, result.Analysis)
	require.NotEmpty(t, result.EvaluationID)

	api.evaluator.Wait()
	require.Len(t, api.submissions.records, 1)
	require.Equal(t, 7, api.submissions.records[0].UserID)

	req = httptest.NewRequest(http.MethodGet, "/submissions/latest/1", nil)
	req.Header.Set("Authorization", bearer(t, 7, ""))
	rec = api.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	latest := decode[types.SubmissionRecord](t, rec)
	require.Equal(t, result.EvaluationID, latest.EvaluationID)

	req = httptest.NewRequest(http.MethodGet, "/submissions/solved", nil)
	req.Header.Set("Authorization", bearer(t, 7, ""))
	rec = api.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int{1}, decode[map[string][]int](t, rec)["problemIds"])
}

func TestSubmitMultipartCodeFile(t *testing.T) {
	api := newTestAPI(t)
	api.seedArchive(t, 3, "1.in", "42", "1.out", "42")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("problemId", "3"))
	require.NoError(t, writer.WriteField("languageId", "54"))
	part, err := writer.CreateFormFile(formFieldCodeFile, "main.cpp")
	require.NoError(t, err)
	_, err = part.Write([]byte("int main() {}"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/submissions", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", bearer(t, 2, ""))
	rec := api.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	api.evaluator.Wait()
	require.Len(t, api.submissions.records, 1)
	require.Equal(t, "int main() {}", api.submissions.records[0].SourceCode)
	require.Equal(t, types.LanguageCPP, api.submissions.records[0].LanguageID)
}

func TestSubmitErrorStatuses(t *testing.T) {
	api := newTestAPI(t)
	api.seedArchive(t, 1, "1.in", "x", "1.out", "x")

	tests := []struct {
		name   string
		body   SubmitRequest
		status int
	}{
		{
			name:   "unknown language",
			body:   SubmitRequest{ProblemID: 1, LanguageID: 999, Code: "x"},
			status: http.StatusBadRequest,
		},
		{
			name:   "empty source",
			body:   SubmitRequest{ProblemID: 1, LanguageID: int(types.LanguagePython), Code: "  \n"},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing fields",
			body:   SubmitRequest{Code: "x"},
			status: http.StatusBadRequest,
		},
		{
			name:   "missing archive",
			body:   SubmitRequest{ProblemID: 404, LanguageID: int(types.LanguagePython), Code: "x"},
			status: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := jsonRequest(t, http.MethodPost, "/submissions", tt.body)
			req.Header.Set("Authorization", bearer(t, 1, ""))
			rec := api.do(t, req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	api.evaluator.Wait()
	require.Empty(t, api.submissions.records)
}

func TestWriteEvaluationErrorMapsRepositoryFailures(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: types.ErrInvalidLanguage, status: http.StatusBadRequest},
		{err: services.ErrInvalidInput, status: http.StatusBadRequest},
		{err: services.ErrNoTestCases, status: http.StatusBadRequest},
		{err: wrap(services.ErrRepository, testcases.ErrNotFound), status: http.StatusNotFound},
		{err: wrap(services.ErrRepository, testcases.ErrMalformed), status: http.StatusUnprocessableEntity},
		{err: wrap(services.ErrRepository, context.DeadlineExceeded), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeEvaluationError(rec, tt.err)
		require.Equal(t, tt.status, rec.Code, tt.err.Error())
	}
}

func wrap(outer, inner error) error {
	return fmt.Errorf("%w: %w", outer, inner)
}

func TestLatestSubmissionNotFound(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/submissions/latest/5", nil)
	req.Header.Set("Authorization", bearer(t, 1, ""))
	rec := api.do(t, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func uploadRequest(t *testing.T, problemID, filename string, archive []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField(formFieldTitle, "Echo"))
	part, err := writer.CreateFormFile(formFieldArchive, filename)
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPut, "/problems/"+problemID+"/testcases", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadTestCasesRequiresAdmin(t *testing.T) {
	api := newTestAPI(t)
	archive := buildZip(t, "1.in", "a", "1.out", "a")

	rec := api.do(t, uploadRequest(t, "1", "tests.zip", archive))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := uploadRequest(t, "1", "tests.zip", archive)
	req.Header.Set("Authorization", bearer(t, 1, ""))
	rec = api.do(t, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUploadTestCases(t *testing.T) {
	api := newTestAPI(t)

	req := uploadRequest(t, "4", "tests.zip", buildZip(t, "1.in", "a", "1.out", "a", "2.in", "b", "2.out", "b"))
	req.Header.Set("Authorization", bearer(t, 1, "admin"))
	rec := api.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	problem := decode[types.Problem](t, rec)
	require.Equal(t, 4, problem.ID)
	require.Equal(t, "Echo", problem.Title)
	require.Equal(t, 2, problem.TestCaseCount)
	require.Equal(t, "problem_4.zip", problem.ArchiveKey)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/problems/4/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cases, err := api.archives.Load(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, cases, 2)
}

func TestUploadTestCasesRejectsMalformedArchive(t *testing.T) {
	api := newTestAPI(t)

	req := uploadRequest(t, "4", "tests.zip", buildZip(t, "1.in", "a", "2.out", "a"))
	req.Header.Set("Authorization", bearer(t, 1, "admin"))
	rec := api.do(t, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req = uploadRequest(t, "4", "tests.rar", []byte("rar"))
	req.Header.Set("Authorization", bearer(t, 1, "admin"))
	rec = api.do(t, req)
	require.NotEqual(t, http.StatusOK, rec.Code)

	rec = api.do(t, httptest.NewRequest(http.MethodGet, "/problems/4/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProblemRejectsBadID(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, httptest.NewRequest(http.MethodGet, "/problems/abc/", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "invalid problem id"))
}
