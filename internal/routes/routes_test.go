package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/qabox/qabox/internal/app"
	"github.com/qabox/qabox/internal/config"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPrefix   = "/console-test"
	testUser     = "admin"
	testPassword = "tangerine-orbit-57"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	app     *app.App
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	dir := t.TempDir()
	cfg := &config.Config{
		AppName:            "QA Box",
		AppEnv:             "test",
		DBDriver:           "sqlite",
		DBConnection:       filepath.Join(dir, "data", "qabox.db"),
		JWTSecret:          "routes-test-secret",
		JWTAlgorithm:       "HS256",
		AskerTokenExpiry:   time.Hour,
		AdminRoutePrefix:   testPrefix,
		AdminUsername:      testUser,
		AdminPasswordHash:  string(hash),
		AdminTokenExpiry:   7 * 24 * time.Hour,
		AdminTokenRefresh:  24 * time.Hour,
		CORSAllowedOrigins: []string{"http://localhost:13000"},
		UploadDir:          filepath.Join(dir, "uploads"),
		UploadMaxSize:      10 << 20,
		ServeUploads:       true,
		BackupDir:          filepath.Join(dir, "backups"),
		BackupMaxCount:     3,
	}
	if mutate != nil {
		mutate(cfg)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	return &testServer{t: t, handler: SetupRoutes(a), app: a}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(req)
}

func (s *testServer) upload(token, filename string, content []byte) *httptest.ResponseRecorder {
	s.t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		s.t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		s.t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		s.t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.do(req)
}

func (s *testServer) login() string {
	s.t.Helper()

	rec := s.json(http.MethodPost, "/api"+testPrefix+"/login", "", map[string]string{
		"username": testUser,
		"password": testPassword,
	})
	if rec.Code != http.StatusOK {
		s.t.Fatalf("login status = %d, body %s", rec.Code, rec.Body)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresAt   string `json:"expires_at"`
	}
	decode(s.t, rec, &token)
	if token.AccessToken == "" || token.TokenType != "bearer" || token.ExpiresAt == "" {
		s.t.Fatalf("login response = %+v", token)
	}
	return token.AccessToken
}

func (s *testServer) createQuestion(content string, images ...string) askerToken {
	s.t.Helper()

	if images == nil {
		images = []string{}
	}
	rec := s.json(http.MethodPost, "/api/questions", "", map[string]any{
		"content": content,
		"images":  images,
	})
	if rec.Code != http.StatusOK {
		s.t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}

	var token askerToken
	decode(s.t, rec, &token)
	return token
}

type askerToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	QuestionID  string `json:"question_id"`
}

type questionJSON struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	Images        []string `json:"images"`
	IsAnswered    bool     `json:"is_answered"`
	IsPublic      bool     `json:"is_public"`
	AnswerContent *string  `json:"answer_content"`
	AnswerImages  []string `json:"answer_images"`
	AnsweredAt    *string  `json:"answered_at"`
}

type errorJSON struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()

	err := json.Unmarshal(rec.Body.Bytes(), v)
	if err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()

	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body)
	}
	var body errorJSON
	decode(t, rec, &body)
	if body.Code != code {
		t.Errorf("error code = %q, want %q", body.Code, code)
	}
	if body.Message == "" {
		t.Error("error message is empty")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	for _, path := range []string{"/", "/health"} {
		rec := s.do(httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}

	rec := s.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	expectError(t, rec, http.StatusNotFound, "not_found")
}

func TestQuestionLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	token := s.createQuestion("hi")
	if token.QuestionID == "" || token.AccessToken == "" || token.TokenType != "bearer" {
		t.Fatalf("create response = %+v", token)
	}

	rec := s.json(http.MethodGet, "/api/questions/"+token.QuestionID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var q questionJSON
	decode(t, rec, &q)
	if q.Content != "hi" || q.IsAnswered || q.IsPublic {
		t.Errorf("question = %+v", q)
	}
	if q.Images == nil || q.AnswerImages == nil {
		t.Errorf("image lists rendered as null: %s", rec.Body)
	}

	rec = s.json(http.MethodPost, "/api/questions/revoke", "", map[string]string{"token": token.AccessToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, body %s", rec.Code, rec.Body)
	}

	rec = s.json(http.MethodGet, "/api/questions/"+token.QuestionID, "", nil)
	expectError(t, rec, http.StatusNotFound, "not_found")

	rec = s.json(http.MethodPost, "/api/questions/revoke", "", map[string]string{"token": token.AccessToken})
	expectError(t, rec, http.StatusNotFound, "not_found")
}

func TestCreateQuestionRejectsBadInput(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	rec := s.json(http.MethodPost, "/api/questions", "", map[string]string{"content": "  "})
	expectError(t, rec, http.StatusBadRequest, "bad_request")

	req := httptest.NewRequest(http.MethodPost, "/api/questions", strings.NewReader("{not json"))
	rec = s.do(req)
	expectError(t, rec, http.StatusBadRequest, "bad_request")
}

func TestRevokeErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	admin := s.login()

	rec := s.json(http.MethodPost, "/api/questions/revoke", "", map[string]string{"token": "forged"})
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")
	if rec.Header().Get("WWW-Authenticate") != "Bearer" {
		t.Errorf("WWW-Authenticate = %q", rec.Header().Get("WWW-Authenticate"))
	}

	// An admin token is not an asker token
	rec = s.json(http.MethodPost, "/api/questions/revoke", "", map[string]string{"token": admin})
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")

	token := s.createQuestion("will be answered")
	rec = s.json(http.MethodPost, "/api"+testPrefix+"/questions/"+token.QuestionID+"/answer", admin, map[string]any{
		"answer_content": "done",
		"answer_images":  []string{},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer status = %d, body %s", rec.Code, rec.Body)
	}

	rec = s.json(http.MethodPost, "/api/questions/revoke", "", map[string]string{"token": token.AccessToken})
	expectError(t, rec, http.StatusConflict, "invalid_state")

	rec = s.json(http.MethodGet, "/api/questions/"+token.QuestionID, "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("answered question gone after failed revoke: %d", rec.Code)
	}
}

func TestAdminFlow(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	base := "/api" + testPrefix

	rec := s.json(http.MethodPost, base+"/login", "", map[string]string{"username": testUser, "password": "wrong-password-123"})
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = s.json(http.MethodGet, base+"/questions", "", nil)
	expectError(t, rec, http.StatusUnauthorized, "unauthorized")

	admin := s.login()

	rec = s.json(http.MethodPost, base+"/verify", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d", rec.Code)
	}
	var verify struct {
		Valid    bool    `json:"valid"`
		Username string  `json:"username"`
		NewToken *string `json:"new_token"`
	}
	decode(t, rec, &verify)
	if !verify.Valid || verify.Username != testUser || verify.NewToken != nil {
		t.Errorf("verify = %+v", verify)
	}
	if rec.Header().Get("X-New-Token") != "" {
		t.Error("fresh token was renewed")
	}

	first := s.createQuestion("first")
	second := s.createQuestion("second")

	rec = s.json(http.MethodGet, base+"/questions?limit=5000", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var all []questionJSON
	decode(t, rec, &all)
	if len(all) != 2 {
		t.Fatalf("admin list has %d questions, want 2", len(all))
	}

	rec = s.json(http.MethodPut, base+"/questions/"+first.QuestionID, admin, map[string]bool{"is_public": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d", rec.Code)
	}
	var updated questionJSON
	decode(t, rec, &updated)
	if !updated.IsPublic || updated.IsAnswered {
		t.Errorf("updated = %+v", updated)
	}

	rec = s.json(http.MethodPost, base+"/questions/"+second.QuestionID+"/answer", admin, map[string]any{
		"answer_content": "an answer",
		"answer_images":  []string{},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("answer status = %d", rec.Code)
	}
	var answered questionJSON
	decode(t, rec, &answered)
	if !answered.IsAnswered || !answered.IsPublic || answered.AnsweredAt == nil {
		t.Errorf("answered = %+v", answered)
	}

	rec = s.json(http.MethodGet, "/api/public/questions", "", nil)
	var feed []questionJSON
	decode(t, rec, &feed)
	if len(feed) != 1 || feed[0].ID != second.QuestionID {
		t.Errorf("public feed = %+v, want only the answered question", feed)
	}

	rec = s.json(http.MethodDelete, base+"/questions/"+second.QuestionID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var deleted struct {
		Message       string `json:"message"`
		DeletedImages int    `json:"deleted_images"`
	}
	decode(t, rec, &deleted)
	if deleted.DeletedImages != 0 {
		t.Errorf("deleted images = %d, want 0", deleted.DeletedImages)
	}

	rec = s.json(http.MethodDelete, base+"/questions/"+second.QuestionID, admin, nil)
	expectError(t, rec, http.StatusNotFound, "not_found")

	rec = s.json(http.MethodPut, base+"/questions/missing", admin, map[string]bool{"is_public": true})
	expectError(t, rec, http.StatusNotFound, "not_found")
}

func TestAdminTokenRenewalHeader(t *testing.T) {
	t.Parallel()

	// A refresh window wider than the token lifetime renews on every call
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.AdminTokenExpiry = time.Hour
		cfg.AdminTokenRefresh = 2 * time.Hour
	})
	admin := s.login()

	rec := s.json(http.MethodGet, "/api"+testPrefix+"/questions", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	renewed := rec.Header().Get("X-New-Token")
	if renewed == "" {
		t.Fatal("no X-New-Token header on a token inside the refresh window")
	}

	rec = s.json(http.MethodPost, "/api"+testPrefix+"/verify", renewed, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("renewed token rejected: %d", rec.Code)
	}
	var verify struct {
		NewToken *string `json:"new_token"`
	}
	decode(t, rec, &verify)
	if verify.NewToken == nil || *verify.NewToken != rec.Header().Get("X-New-Token") {
		t.Errorf("verify new_token = %v, header %q", verify.NewToken, rec.Header().Get("X-New-Token"))
	}
}

func TestUploadSizeCap(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	big := bytes.Repeat([]byte{0xAB}, 15<<20)

	rec := s.upload("", "huge.png", big)
	expectError(t, rec, http.StatusRequestEntityTooLarge, "payload_too_large")

	admin := s.login()
	rec = s.upload(admin, "huge.png", big)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin upload status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		URL string `json:"url"`
	}
	decode(t, rec, &resp)
	if !strings.HasPrefix(resp.URL, "/uploads/") || !strings.HasSuffix(resp.URL, ".png") {
		t.Fatalf("upload url = %q", resp.URL)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, resp.URL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s = %d", resp.URL, rec.Code)
	}
	if rec.Body.Len() != len(big) {
		t.Errorf("served %d bytes, want %d", rec.Body.Len(), len(big))
	}
}

func TestUploadAndDeletePurgesFiles(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	rec := s.upload("", "small.jpg", []byte("jpeg bytes"))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body)
	}
	var resp struct {
		URL string `json:"url"`
	}
	decode(t, rec, &resp)

	bucket := resp.URL[:strings.LastIndex(resp.URL, "/")+1]
	rec = s.do(httptest.NewRequest(http.MethodGet, bucket, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("directory listing status = %d, want 404", rec.Code)
	}

	token := s.createQuestion("with a picture", resp.URL)
	admin := s.login()

	rec = s.json(http.MethodDelete, "/api"+testPrefix+"/questions/"+token.QuestionID, admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	var deleted struct {
		DeletedImages int `json:"deleted_images"`
	}
	decode(t, rec, &deleted)
	if deleted.DeletedImages != 1 {
		t.Errorf("deleted images = %d, want 1", deleted.DeletedImages)
	}

	rec = s.do(httptest.NewRequest(http.MethodGet, resp.URL, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET deleted upload = %d, want 404", rec.Code)
	}

	rec = s.json(http.MethodPost, "/api"+testPrefix+"/uploads/cleanup", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", rec.Code)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	rec := s.json(http.MethodPost, "/api/upload", "", map[string]string{"file": "nope"})
	expectError(t, rec, http.StatusBadRequest, "bad_request")
}

func TestBatch(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	a := s.createQuestion("a")
	b := s.createQuestion("b")

	rec := s.json(http.MethodPost, "/api/questions/batch", "", []string{a.QuestionID, "missing", b.QuestionID})
	if rec.Code != http.StatusOK {
		t.Fatalf("batch status = %d", rec.Code)
	}
	var found []questionJSON
	decode(t, rec, &found)
	if len(found) != 2 {
		t.Errorf("batch returned %d questions, want 2", len(found))
	}

	rec = s.json(http.MethodPost, "/api/questions/batch", "", []string{})
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty batch = %d %s, want 200 []", rec.Code, rec.Body)
	}

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = "id"
	}
	rec = s.json(http.MethodPost, "/api/questions/batch", "", ids)
	expectError(t, rec, http.StatusBadRequest, "bad_request")
}

func TestPublicPagination(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	for _, query := range []string{"?skip=-1", "?limit=0", "?limit=abc"} {
		rec := s.json(http.MethodGet, "/api/public/questions"+query, "", nil)
		expectError(t, rec, http.StatusBadRequest, "bad_request")
	}

	rec := s.json(http.MethodGet, "/api/public/questions?skip=0&limit=500", "", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty feed = %d %s, want 200 []", rec.Code, rec.Body)
	}
}

func TestBackupEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	admin := s.login()
	base := "/api" + testPrefix

	rec := s.json(http.MethodPost, base+"/backups", admin, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create backup status = %d, body %s", rec.Code, rec.Body)
	}

	rec = s.json(http.MethodGet, base+"/backups", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list backups status = %d", rec.Code)
	}
	var backups []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	}
	decode(t, rec, &backups)
	if len(backups) != 1 || !strings.HasPrefix(backups[0].Name, "qabox_backup_") || backups[0].Size == 0 {
		t.Errorf("backups = %+v", backups)
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api"+testPrefix+"/questions", nil)
	req.Header.Set("Origin", "http://localhost:13000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "authorization")
	rec := s.do(req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	h := rec.Header()
	if h.Get("Access-Control-Allow-Origin") != "http://localhost:13000" {
		t.Errorf("allow origin = %q", h.Get("Access-Control-Allow-Origin"))
	}
	if h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed")
	}
	if !strings.Contains(h.Get("Access-Control-Expose-Headers"), "X-New-Token") {
		t.Errorf("expose headers = %q", h.Get("Access-Control-Expose-Headers"))
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = s.do(req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unlisted origin allowed")
	}
}

func TestCustomAdminPrefix(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	rec := s.json(http.MethodPost, "/api/console-x7k9m/login", "", map[string]string{
		"username": testUser,
		"password": testPassword,
	})
	expectError(t, rec, http.StatusNotFound, "not_found")
}

func TestRepeatedBadLoginsStayUnauthorized(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	for i := range 12 {
		rec := s.json(http.MethodPost, "/api"+testPrefix+"/login", "", map[string]string{
			"username": testUser,
			"password": "not-the-password-1",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, rec.Code)
		}
	}

	if token := s.login(); token == "" {
		t.Error("valid login failed after bad attempts")
	}
}
