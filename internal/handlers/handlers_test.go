package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"codejudge/internal/auth"
	"codejudge/internal/config"
	"codejudge/internal/execution"
	"codejudge/internal/grader"
	"codejudge/internal/repository"
	"codejudge/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// echoEngine answers with a canned result per stdin; unknown stdin echoes it
// back as output.
type echoEngine struct {
	byStdin map[string]execution.Result
}

func (e *echoEngine) Run(_ context.Context, req execution.Request) execution.Result {
	if res, ok := e.byStdin[req.Stdin]; ok {
		return res
	}
	return execution.Result{Outcome: execution.OK, Output: req.Stdin, Compiled: true}
}

type healthStub struct{ err error }

func (h healthStub) Health() error { return h.err }

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	engine *echoEngine
	health *healthStub
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.User{}, &models.Problem{}, &models.TestCase{},
		&models.Submission{}, &models.SubmissionTestCase{},
	))

	repo := repository.New(gdb)
	authSvc := auth.NewService("test-secret", 4)
	eng := &echoEngine{byStdin: make(map[string]execution.Result)}
	gr := grader.New(eng, repo, nil)
	health := &healthStub{}

	cfg := &config.Config{
		AllowedOrigins:   "*",
		MaxFileSize:      50000,
		MaxTotalFileSize: 200000,
	}
	h := New(cfg, repo, authSvc, gr, eng, nil, health)

	router := gin.New()
	h.Register(router)
	return &testEnv{router: router, db: gdb, engine: eng, health: health}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": username, "email": username + "@example.com", "password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (env *testEnv) seedProblem(t *testing.T, cases ...models.TestCase) *models.Problem {
	t.Helper()
	p := &models.Problem{
		Slug: "two-sum", Title: "Two Sum", Difficulty: "easy", IsPublic: true,
		Examples: `[{"input":"1 2","output":"3"}]`,
	}
	require.NoError(t, env.db.Create(p).Error)
	for i := range cases {
		cases[i].ProblemID = p.ID
		cases[i].ExecutionOrder = i + 1
		require.NoError(t, env.db.Create(&cases[i]).Error)
	}
	return p
}

func TestRegisterLoginFlow(t *testing.T) {
	env := setup(t)
	env.register(t, "alice")

	// duplicate username
	w := env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "alice", "email": "a2@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	// short password
	w = env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "bob", "email": "b@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// missing field
	w = env.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"username": "carol", "password": "secret1",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// wrong password
	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice", "password": "nope",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// success stamps last_login
	w = env.do(t, http.MethodPost, "/api/auth/login", "", gin.H{
		"username": "alice", "password": "secret1",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	var user models.User
	require.NoError(t, env.db.Where("username = ?", "alice").First(&user).Error)
	assert.NotNil(t, user.LastLogin)
}

func TestHealth(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.health.err = errors.New("down")
	w = env.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCSRFToken(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodGet, "/api/csrf-token", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "csrf_token")
	assert.NotEmpty(t, w.Header().Get("Set-Cookie"))
}

func TestProblemsListAndFilter(t *testing.T) {
	env := setup(t)
	env.seedProblem(t)

	w := env.do(t, http.MethodGet, "/api/problems", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "two-sum")

	w = env.do(t, http.MethodGet, "/api/problems?difficulty=hard", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "two-sum")
}

func TestProblemDetailRedactsHiddenCases(t *testing.T) {
	env := setup(t)
	env.seedProblem(t,
		models.TestCase{InputText: "1 2", ExpectedOutput: "3"},
		models.TestCase{InputText: "top secret", ExpectedOutput: "42", IsHidden: true},
	)

	w := env.do(t, http.MethodGet, "/api/problem/two-sum", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "1 2")
	assert.NotContains(t, body, "top secret")
	assert.NotContains(t, body, "42")

	var payload struct {
		Examples  []interface{} `json:"examples"`
		TestCases []struct {
			IsHidden bool `json:"is_hidden"`
		} `json:"test_cases"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Len(t, payload.Examples, 1)
	require.Len(t, payload.TestCases, 2)
	assert.True(t, payload.TestCases[1].IsHidden)
}

func TestProblemNotFound(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodGet, "/api/problem/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunAllowsAnonymous(t *testing.T) {
	env := setup(t)
	w := env.do(t, http.MethodPost, "/api/run", "", gin.H{
		"files": gin.H{"app.py": "print(1)"}, "language": "python",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"verdict":"AC"`)
}

func TestRunWithStdin(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")

	w := env.do(t, http.MethodPost, "/api/run", token, gin.H{
		"files": gin.H{"app.py": "print(input())"}, "language": "python", "stdin": "hello",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Verdict string `json:"verdict"`
		Output  string `json:"output"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.VerdictAccepted, resp.Verdict)
	assert.Equal(t, "hello", resp.Output)
}

func TestRunRuntimeErrorVerdict(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")
	env.engine.byStdin["boom"] = execution.Result{
		Outcome: execution.Runtime, Error: "Traceback", Compiled: true,
	}

	w := env.do(t, http.MethodPost, "/api/run", token, gin.H{
		"files": gin.H{"app.py": "raise"}, "language": "python", "stdin": "boom",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verdict":"RE"`)
}

func TestRunAgainstProblemDoesNotPersist(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")
	env.seedProblem(t, models.TestCase{InputText: "1 2", ExpectedOutput: "1 2"})

	w := env.do(t, http.MethodPost, "/api/run", token, gin.H{
		"files": gin.H{"app.py": "print(input())"}, "language": "python",
		"problem_slug": "two-sum",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"verdict":"AC"`)

	var count int64
	require.NoError(t, env.db.Model(&models.Submission{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRunValidationRejectsBadFilename(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")

	w := env.do(t, http.MethodPost, "/api/run", token, gin.H{
		"files": gin.H{"../evil.py": "x"}, "language": "python",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitAndHistory(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")
	env.seedProblem(t,
		models.TestCase{InputText: "1 2", ExpectedOutput: "1 2"},
		models.TestCase{InputText: "hidden-in", ExpectedOutput: "hidden-in", IsHidden: true},
	)

	w := env.do(t, http.MethodPost, "/api/submit", token, gin.H{
		"files": gin.H{"app.py": "print(input())"}, "language": "python",
		"problem_slug": "two-sum",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res grader.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.VerdictAccepted, res.Verdict)
	assert.Equal(t, 2, res.Passed)
	require.Len(t, res.Tests, 2)
	assert.Equal(t, "[Hidden]", res.Tests[1].Input)
	require.NotZero(t, res.SubmissionID)

	body := w.Body.String()
	assert.Contains(t, body, `"compiled":true`)
	assert.Contains(t, body, `"is_hidden"`)
	assert.Contains(t, body, `"expected"`)

	// history
	w = env.do(t, http.MethodGet, "/api/submissions", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"verdict":"AC"`)

	// detail redacts the hidden row's output
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/submission/%d", res.SubmissionID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "[Hidden]")
	assert.NotContains(t, w.Body.String(), "hidden-in")

	// another user cannot see it
	other := env.register(t, "mallory")
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/submission/%d", res.SubmissionID), other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitCompileErrorBody(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")
	env.seedProblem(t, models.TestCase{InputText: "1 2", ExpectedOutput: "1 2"})
	env.engine.byStdin[""] = execution.Result{
		Outcome: execution.CompileError, Error: "SyntaxError: invalid syntax",
	}

	w := env.do(t, http.MethodPost, "/api/submit", token, gin.H{
		"files": gin.H{"app.py": "print("}, "language": "python",
		"problem_slug": "two-sum",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := w.Body.String()
	assert.Contains(t, body, `"verdict":"CE"`)
	assert.Contains(t, body, `"compiled":false`)
	assert.Contains(t, body, `"compile_error":"SyntaxError: invalid syntax"`)
}

func TestPrivateProblemHiddenEverywhere(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")
	require.NoError(t, env.db.Create(&models.Problem{
		Slug: "staging-only", Title: "Staging Only", IsPublic: false,
	}).Error)

	w := env.do(t, http.MethodGet, "/api/problem/staging-only", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/run", token, gin.H{
		"files": gin.H{"app.py": "print(1)"}, "language": "python",
		"problem_slug": "staging-only",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/submit", token, gin.H{
		"files": gin.H{"app.py": "print(1)"}, "language": "python",
		"problem_slug": "staging-only",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitMissingProblem(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")
	w := env.do(t, http.MethodPost, "/api/submit", token, gin.H{
		"files": gin.H{"app.py": "x"}, "language": "python", "problem_slug": "nope",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitRequiresProblemSlug(t *testing.T) {
	env := setup(t)
	token := env.register(t, "alice")
	w := env.do(t, http.MethodPost, "/api/submit", token, gin.H{
		"files": gin.H{"app.py": "x"}, "language": "python",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
