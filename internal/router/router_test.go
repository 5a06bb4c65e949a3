package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"orthobox-backend/internal/database"
	"orthobox-backend/internal/handlers"
	"orthobox-backend/internal/middleware"
	"orthobox-backend/internal/oauth1"
	"orthobox-backend/internal/outcome"
	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/secrets"
	"orthobox-backend/internal/services"
	"orthobox-backend/internal/store"
	"orthobox-backend/internal/websocket"
)

const (
	toolBase   = "http://tool.test"
	testKey    = "moodle-key"
	testSecret = "moodle-secret"
)

type app struct {
	handler http.Handler
	jwt     *middleware.JWTAuth
}

func newApp(t *testing.T) *app {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	backend, err := store.NewSQLiteBackend(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	creds := repository.NewCredentialRepo(backend, secrets.NewSealer("test"))
	if err := creds.Register(ctx, testKey, testSecret); err != nil {
		t.Fatal(err)
	}
	nonces := repository.NewNonceRepo(backend)
	sessions := repository.NewSessionRepo(backend)
	users := repository.NewUserRepo(backend)
	criteria := repository.NewCriteriaRepo(backend)
	outbox := repository.NewOutboxRepo(backend)

	jwtAuth := middleware.NewJWTAuth("test-secret")
	hub := websocket.NewHub(nil)
	delivery := services.NewGradeDelivery(creds, outbox, outcome.NewPoster(time.Second), 3, time.Minute)
	authorizer := services.NewAuthorizer(creds, nonces)
	factory := services.NewSessionService(backend, users, creds, jwtAuth, "http://videos.test", time.Hour)
	grading := services.NewGradingService(backend, sessions, users, criteria, delivery, jwtAuth, hub)
	admin := services.NewAdminService(creds, criteria, sessions, users, nonces)

	limiter := middleware.NewRateLimiter(2, time.Minute)
	t.Cleanup(limiter.Stop)

	h := New(
		jwtAuth,
		limiter,
		handlers.NewLTIHandler(authorizer, factory, sessions, toolBase),
		handlers.NewActivityHandler(grading, sessions, hub, toolBase),
		handlers.NewAdminHandler(admin),
		"*",
	)
	return &app{handler: h, jwt: jwtAuth}
}

func (a *app) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func launchRequest(t *testing.T, secret, role string) *http.Request {
	t.Helper()
	form := url.Values{
		"lti_message_type":            {"basic-lti-launch-request"},
		"user_id":                     {"42"},
		"tool_consumer_instance_guid": {"moodle.test"},
		"resource_link_id":            {"7"},
		"context_id":                  {"course-1"},
		"lis_person_name_given":       {"Ada"},
		"roles":                       {role},
		"custom_box_version":          {"pokey"},
	}
	unsigned, _ := http.NewRequest(http.MethodPost, toolBase+"/launch", strings.NewReader(form.Encode()))
	unsigned.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	signed, err := oauth1.Sign(unsigned, testKey, secret)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/launch", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", signed.Header.Get("Authorization"))
	return req
}

var (
	sessionPattern  = regexp.MustCompile(`/([0-9a-f]{32})/launch\.jnlp`)
	argumentPattern = regexp.MustCompile(`<argument>([^<]*)</argument>`)
)

func TestHealth(t *testing.T) {
	a := newApp(t)
	rr := a.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ok") {
		t.Fatalf("health: %d %s", rr.Code, rr.Body.String())
	}
}

func TestLaunchToResults(t *testing.T) {
	a := newApp(t)

	// Launch
	rr := a.do(launchRequest(t, testSecret, "Learner"))
	if rr.Code != http.StatusOK {
		t.Fatalf("launch: %d %s", rr.Code, rr.Body.String())
	}
	m := sessionPattern.FindStringSubmatch(rr.Body.String())
	if m == nil {
		t.Fatalf("no jnlp link in launch page:\n%s", rr.Body.String())
	}
	sessionID := m[1]

	// JNLP carries the upload token
	rr = a.do(httptest.NewRequest(http.MethodGet, "/"+sessionID+"/launch.jnlp", nil))
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/x-java-jnlp-file" {
		t.Fatalf("jnlp: %d %q", rr.Code, rr.Header().Get("Content-Type"))
	}
	args := argumentPattern.FindAllStringSubmatch(rr.Body.String(), -1)
	if len(args) != 3 || args[0][1] != sessionID {
		t.Fatalf("unexpected jnlp arguments %v", args)
	}
	token := args[1][1]

	// Waiting page
	rr = a.do(httptest.NewRequest(http.MethodGet, "/"+sessionID+"/view_results", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Triangulation") {
		t.Fatalf("view_results: %d", rr.Code)
	}

	// Upload without a token
	body := `{"duration": 60000, "errors": [], "pokes": 9, "version": 1}`
	rr = a.do(httptest.NewRequest(http.MethodPost, "/"+sessionID+"/results", strings.NewReader(body)))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("tokenless upload: %d", rr.Code)
	}

	// Upload
	req := httptest.NewRequest(http.MethodPost, "/"+sessionID+"/results", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rr = a.do(req)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	var result struct {
		Result      string `json:"result"`
		Completed   int    `json:"completed"`
		GradePosted bool   `json:"grade_posted"`
	}
	json.NewDecoder(rr.Body).Decode(&result)
	if result.Result != "pass" || result.Completed != 1 || result.GradePosted {
		t.Fatalf("upload result %+v", result)
	}

	// Token is spent
	rr = a.do(httptest.NewRequest(http.MethodGet, "/"+sessionID+"/launch.jnlp", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("jnlp after upload: %d", rr.Code)
	}
	req = httptest.NewRequest(http.MethodPost, "/"+sessionID+"/results", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if rr = a.do(req); rr.Code != http.StatusNotFound {
		t.Errorf("second upload: %d", rr.Code)
	}

	// Results page and progress
	rr = a.do(httptest.NewRequest(http.MethodGet, "/"+sessionID+"/results", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "1 of 3") {
		t.Errorf("results page: %d\n%s", rr.Code, rr.Body.String())
	}
	rr = a.do(httptest.NewRequest(http.MethodGet, "/"+sessionID+"/progress", nil))
	var progress struct {
		Completed int    `json:"completed"`
		Total     int    `json:"total"`
		Result    string `json:"result"`
	}
	json.NewDecoder(rr.Body).Decode(&progress)
	if rr.Code != http.StatusOK || progress.Completed != 1 || progress.Total != 3 || progress.Result != "pass" {
		t.Errorf("progress: %d %+v", rr.Code, progress)
	}
}

func TestLaunchInstructorPreview(t *testing.T) {
	a := newApp(t)

	rr := a.do(launchRequest(t, testSecret, "urn:lti:role:ims/lis/Instructor"))
	if rr.Code != http.StatusOK {
		t.Fatalf("launch: %d %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "will not be sent to the gradebook") {
		t.Errorf("instructor launch without outcome service has no preview notice:\n%s", rr.Body.String())
	}

	rr = a.do(launchRequest(t, testSecret, "Learner"))
	if strings.Contains(rr.Body.String(), "will not be sent to the gradebook") {
		t.Errorf("learner launch shows the preview notice")
	}
}

func TestLaunchRejections(t *testing.T) {
	a := newApp(t)

	rr := a.do(launchRequest(t, "wrong", "Learner"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: %d", rr.Code)
	}

	req := launchRequest(t, testSecret, "Learner")
	raw, _ := io.ReadAll(req.Body)
	first := httptest.NewRequest(http.MethodPost, "/launch", strings.NewReader(string(raw)))
	first.Header = req.Header.Clone()
	replay := httptest.NewRequest(http.MethodPost, "/launch", strings.NewReader(string(raw)))
	replay.Header = req.Header.Clone()

	if rr = a.do(first); rr.Code != http.StatusOK {
		t.Fatalf("first launch: %d %s", rr.Code, rr.Body.String())
	}
	if rr = a.do(replay); rr.Code != http.StatusUnauthorized {
		t.Errorf("replay: %d", rr.Code)
	}

	empty := httptest.NewRequest(http.MethodPost, "/launch", strings.NewReader(""))
	empty.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if rr = a.do(empty); rr.Code != http.StatusBadRequest {
		t.Errorf("missing credentials: %d", rr.Code)
	}

	if rr = a.do(httptest.NewRequest(http.MethodGet, "/deadbeef/results", nil)); rr.Code != http.StatusNotFound {
		t.Errorf("unknown session results: %d", rr.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	a := newApp(t)
	token, _ := a.jwt.GenerateAdminToken("ops", time.Hour)

	authed := func(method, path, body string) *http.Request {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		return req
	}

	if rr := a.do(httptest.NewRequest(http.MethodGet, "/session_data", nil)); rr.Code != http.StatusUnauthorized {
		t.Errorf("session_data without token: %d", rr.Code)
	}

	rr := a.do(authed(http.MethodPost, "/configure/pokey", `{"pokes": 4}`))
	var c struct {
		Pokes  int `json:"pokes"`
		Errors int `json:"errors"`
	}
	json.NewDecoder(rr.Body).Decode(&c)
	if rr.Code != http.StatusOK || c.Pokes != 4 || c.Errors != 5 {
		t.Errorf("configure: %d %+v", rr.Code, c)
	}
	if rr = a.do(authed(http.MethodGet, "/configure/wobbly", "")); rr.Code != http.StatusNotFound {
		t.Errorf("unknown activity: %d", rr.Code)
	}

	for i, want := range []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests} {
		if rr = a.do(authed(http.MethodGet, "/new_oauth_creds", "")); rr.Code != want {
			t.Errorf("new_oauth_creds #%d: %d, want %d", i, rr.Code, want)
		}
	}

	req := authed(http.MethodGet, "/session_data", "")
	req.Header.Set("Accept-Encoding", "gzip")
	rr = a.do(req)
	if rr.Code != http.StatusOK {
		t.Errorf("session_data: %d", rr.Code)
	}
}
