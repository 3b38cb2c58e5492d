package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/english-practice-service/internal/cache"
	"github.com/SAP-F-2025/english-practice-service/internal/config"
	"github.com/SAP-F-2025/english-practice-service/internal/events"
	"github.com/SAP-F-2025/english-practice-service/internal/llm"
	"github.com/SAP-F-2025/english-practice-service/internal/models"
	"github.com/SAP-F-2025/english-practice-service/internal/quiz"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories/document"
	"github.com/SAP-F-2025/english-practice-service/internal/repositories/jsonfile"
	"github.com/SAP-F-2025/english-practice-service/internal/services"
	"github.com/SAP-F-2025/english-practice-service/internal/utils"
	"github.com/SAP-F-2025/english-practice-service/internal/validator"
)

type testServer struct {
	router  *gin.Engine
	manager services.ServiceManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slogLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	gateway, err := llm.NewGateway(llm.Options{Timeout: time.Second}, llm.Keys{}, slogLogger)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	cm := cache.NewCacheManager(nil)
	manager := services.NewServiceManager(
		document.NewManager(jsonfile.NewStore(filepath.Join(dir, "users_data.json")), slogLogger),
		cm,
		quiz.NewStore(cm.Session, time.Hour),
		gateway,
		events.NewMockEventPublisher(slogLogger),
		slogLogger,
		validator.New(),
		services.ServiceManagerConfig{
			Auth: config.AuthConfig{
				JWTSecret:     "test-secret",
				TokenTTL:      time.Hour,
				AdminUsername: "admin",
				AdminPassword: "admin123",
			},
			StorageDriver: "file",
			EnvFile:       config.NewEnvFile(filepath.Join(dir, ".env")),
		},
	)
	if err := manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	logger := utils.NewSlogLogger(slogLogger)
	router := gin.New()
	SetupMiddleware(router, logger)
	NewHandlerManager(manager, logger, config.CasdoorConfig{}).SetupRoutes(router)

	return &testServer{router: router, manager: manager}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) upload(t *testing.T, path, token, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login(%s) status = %d, body = %s", username, w.Code, w.Body.String())
	}
	var resp services.LoginResponse
	decode(t, w, &resp)
	return resp.Token
}

// seed registers kim (teacher) and minji (student) and returns their tokens
// along with the admin's.
func (s *testServer) seed(t *testing.T) (admin, teacher, student string) {
	t.Helper()
	admin = s.login(t, "admin", "admin123")

	w := s.do(t, http.MethodPost, "/api/v1/admin/users", admin, map[string]string{
		"username": "kim", "password": "secret123", "role": "teacher", "name": "Kim",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register teacher status = %d, body = %s", w.Code, w.Body.String())
	}
	teacher = s.login(t, "kim", "secret123")

	w = s.do(t, http.MethodPost, "/api/v1/teacher/students", teacher, map[string]string{
		"username": "minji", "password": "secret123", "role": "admin", "name": "Minji",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register student status = %d, body = %s", w.Code, w.Body.String())
	}
	student = s.login(t, "minji", "secret123")
	return admin, teacher, student
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func problemBody(question string) map[string]string {
	return map[string]string{
		"school_type":   "중학교",
		"grade":         "1학년",
		"topic":         "일상생활",
		"difficulty":    "하",
		"question_type": "multiple_choice",
		"question":      question,
		"options":       "A. Tom B. Jane C. Mike",
		"answer":        "A",
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	s.manager.Shutdown(context.Background())
	if w := s.do(t, http.MethodGet, "/health", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d, want 503", w.Code)
	}
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", "admin123")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid token", header: "Bearer " + token, want: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token, want: http.StatusOK},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-token", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad password status = %d, want 401", w.Code)
	}
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t)
	admin, teacher, student := s.seed(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{name: "student cannot create problems", method: http.MethodPost, path: "/api/v1/problems", token: student, body: problemBody("Q?"), want: http.StatusForbidden},
		{name: "student can list problems", method: http.MethodGet, path: "/api/v1/problems", token: student, want: http.StatusOK},
		{name: "student cannot list students", method: http.MethodGet, path: "/api/v1/teacher/students", token: student, want: http.StatusForbidden},
		{name: "teacher cannot manage users", method: http.MethodGet, path: "/api/v1/admin/users", token: teacher, want: http.StatusForbidden},
		{name: "admin passes teacher routes", method: http.MethodGet, path: "/api/v1/teacher/students", token: admin, want: http.StatusOK},
		{name: "admin reads system info", method: http.MethodGet, path: "/api/v1/admin/system", token: admin, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestTeacherRegistersOnlyStudents(t *testing.T) {
	s := newTestServer(t)
	_, _, student := s.seed(t)

	w := s.do(t, http.MethodGet, "/api/v1/auth/me", student, nil)
	var profile models.Profile
	decode(t, w, &profile)
	if profile.Role != models.RoleStudent || profile.CreatedBy != "kim" {
		t.Errorf("profile = %+v, want student created by kim", profile)
	}
}

func TestDeletedUserTokenRejected(t *testing.T) {
	s := newTestServer(t)
	admin, _, student := s.seed(t)

	if w := s.do(t, http.MethodDelete, "/api/v1/admin/users/minji", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodGet, "/api/v1/records/me", student, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("deleted user status = %d, want 401", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/api/v1/admin/users/admin", admin, nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("self delete status = %d, want 422", w.Code)
	}
}

func TestQuizFlow(t *testing.T) {
	s := newTestServer(t)
	_, teacher, student := s.seed(t)

	w := s.do(t, http.MethodPost, "/api/v1/problems", teacher, problemBody("Who is Tom?"))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var problem models.Problem
	decode(t, w, &problem)

	w = s.do(t, http.MethodPost, "/api/v1/quiz/sessions", student, map[string]interface{}{"problem_ids": []string{problem.ID}})
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body = %s", w.Code, w.Body.String())
	}
	var view services.QuizView
	decode(t, w, &view)
	base := "/api/v1/quiz/sessions/" + view.Status.SessionID

	if w := s.do(t, http.MethodGet, base, teacher, nil); w.Code != http.StatusForbidden && w.Code != http.StatusNotFound {
		t.Errorf("other user get status = %d, want 403 or 404", w.Code)
	}
	if w := s.do(t, http.MethodPut, base+"/answers/5", student, map[string]string{"answer": "A"}); w.Code != http.StatusBadRequest {
		t.Errorf("out of range answer status = %d, want 400", w.Code)
	}
	if w := s.do(t, http.MethodPut, base+"/answers/x", student, map[string]string{"answer": "A"}); w.Code != http.StatusBadRequest {
		t.Errorf("non numeric index status = %d, want 400", w.Code)
	}
	if w := s.do(t, http.MethodPut, base+"/answers/0", student, map[string]string{"answer": "A"}); w.Code != http.StatusOK {
		t.Fatalf("answer status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, base+"/save", student, nil); w.Code == http.StatusCreated {
		t.Error("save before submit succeeded")
	}
	if w := s.do(t, http.MethodPost, base+"/submit", student, nil); w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPut, base+"/answers/0", student, map[string]string{"answer": "B"}); w.Code != http.StatusConflict {
		t.Errorf("answer after submit status = %d, want 409", w.Code)
	}

	w = s.do(t, http.MethodGet, base+"/results", student, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("results status = %d, body = %s", w.Code, w.Body.String())
	}
	var results models.QuizResults
	decode(t, w, &results)
	if results.Stats.CorrectChoices != 1 {
		t.Errorf("correct choices = %d, want 1", results.Stats.CorrectChoices)
	}

	if w := s.do(t, http.MethodPost, base+"/save", student, nil); w.Code != http.StatusCreated {
		t.Fatalf("save status = %d, body = %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/records/me", student, nil)
	var record models.StudentRecord
	decode(t, w, &record)
	if record.TotalProblems != 1 {
		t.Errorf("total problems = %d, want 1", record.TotalProblems)
	}

	w = s.do(t, http.MethodPut, "/api/v1/teacher/students/minji/records/0/grade", teacher, map[string]interface{}{"feedback": "Good", "score": 95})
	if w.Code != http.StatusOK {
		t.Fatalf("grade status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPut, "/api/v1/teacher/students/minji/records/9/grade", teacher, map[string]string{"feedback": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("grade out of range status = %d, want 404", w.Code)
	}
}

func TestStartQuizWithoutProblems(t *testing.T) {
	s := newTestServer(t)
	_, _, student := s.seed(t)

	w := s.do(t, http.MethodPost, "/api/v1/quiz/sessions", student, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409 (body %s)", w.Code, w.Body.String())
	}
}

func TestImportCSVUpload(t *testing.T) {
	s := newTestServer(t)
	_, teacher, _ := s.seed(t)

	w := s.do(t, http.MethodGet, "/api/v1/problems/csv/template", teacher, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("template status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); got == "" {
		t.Error("template is not served as an attachment")
	}

	w = s.upload(t, "/api/v1/problems/import/csv", teacher, "problems.csv", w.Body.Bytes())
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	var result services.ImportResult
	decode(t, w, &result)
	if len(result.Created) != 3 || len(result.Errors) != 0 {
		t.Errorf("result = %d created, errors %+v", len(result.Created), result.Errors)
	}

	w = s.upload(t, "/api/v1/problems/import/csv", teacher, "bad.csv", []byte("question\nq\n"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing columns status = %d, want 400", w.Code)
	}
}

func TestBackupAndRestore(t *testing.T) {
	s := newTestServer(t)
	admin, teacher, _ := s.seed(t)
	s.do(t, http.MethodPost, "/api/v1/problems", teacher, problemBody("Kept?"))

	w := s.do(t, http.MethodGet, "/api/v1/admin/backup?format=json", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("backup status = %d, body = %s", w.Code, w.Body.String())
	}
	backup := w.Body.Bytes()

	if w := s.do(t, http.MethodDelete, "/api/v1/admin/users/kim", admin, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	if w := s.upload(t, "/api/v1/admin/restore", admin, "backup.json", backup); w.Code != http.StatusBadRequest {
		t.Errorf("unconfirmed restore status = %d, want 400", w.Code)
	}
	if w := s.upload(t, "/api/v1/admin/restore?confirm=true", admin, "backup.json", []byte("{}")); w.Code != http.StatusBadRequest {
		t.Errorf("empty document restore status = %d, want 400", w.Code)
	}

	w = s.upload(t, "/api/v1/admin/restore?confirm=true", admin, "backup.json", backup)
	if w.Code != http.StatusOK {
		t.Fatalf("restore status = %d, body = %s", w.Code, w.Body.String())
	}
	var summary services.RestoreSummary
	decode(t, w, &summary)
	if summary.Users != 3 || summary.Problems != 1 {
		t.Errorf("summary = %+v", summary)
	}
	s.login(t, "kim", "secret123")

	if w := s.do(t, http.MethodGet, "/api/v1/admin/backup?format=tar", admin, nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown format status = %d, want 422", w.Code)
	}
}

func TestAPIKeySettings(t *testing.T) {
	s := newTestServer(t)
	admin := s.login(t, "admin", "admin123")

	if w := s.do(t, http.MethodPost, "/api/v1/admin/settings/api-keys/claude/test", admin, nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown provider status = %d, want 400", w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/v1/admin/settings/api-keys/openai/test", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("test status = %d, body = %s", w.Code, w.Body.String())
	}
	var result llm.ConnectionResult
	decode(t, w, &result)
	if result.OK {
		t.Error("probe without a key reported OK")
	}

	w = s.do(t, http.MethodGet, "/api/v1/admin/settings/api-keys", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
}

func TestGenerateWithoutProvider(t *testing.T) {
	s := newTestServer(t)
	_, teacher, _ := s.seed(t)

	w := s.do(t, http.MethodPost, "/api/v1/problems/generate", teacher, map[string]interface{}{
		"school_type": "중학교", "grade": "1학년", "topic": "일상생활", "difficulty": "하", "count": 2,
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 (body %s)", w.Code, w.Body.String())
	}
}
