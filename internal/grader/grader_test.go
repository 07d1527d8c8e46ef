package grader

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"codejudge/internal/execution"
	"codejudge/internal/repository"
	"codejudge/pkg/models"
)

// scriptedEngine returns a canned result per stdin value. The compile probe
// arrives with empty stdin.
type scriptedEngine struct {
	byStdin map[string]execution.Result
	probe   execution.Result
	runs    int
}

func (e *scriptedEngine) Run(_ context.Context, req execution.Request) execution.Result {
	e.runs++
	if req.Stdin == "" {
		if res, ok := e.byStdin[""]; ok {
			return res
		}
		return e.probe
	}
	if res, ok := e.byStdin[req.Stdin]; ok {
		return res
	}
	return execution.Result{Outcome: execution.OK, Compiled: true}
}

type vetoGate struct {
	veto bool
	msg  string
}

func (g vetoGate) Validate() (bool, string) {
	if g.veto {
		return false, g.msg
	}
	return true, "Deployment validation successful."
}

func testStore(t *testing.T) (*repository.Repository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Problem{}, &models.TestCase{},
		&models.Submission{}, &models.SubmissionTestCase{},
	))
	return repository.New(db), db
}

func seedProblem(t *testing.T, db *gorm.DB, cases ...models.TestCase) *models.Problem {
	t.Helper()
	p := &models.Problem{Slug: "sum", Title: "Sum", IsPublic: true}
	require.NoError(t, db.Create(p).Error)
	for i := range cases {
		cases[i].ProblemID = p.ID
		cases[i].ExecutionOrder = i + 1
		require.NoError(t, db.Create(&cases[i]).Error)
	}
	return p
}

func gradeReq(p *models.Problem) Request {
	return Request{
		UserID:   1,
		Problem:  p,
		Files:    map[string]string{"app.py": "print(input())"},
		Language: "python",
	}
}

func TestGradeAllPass(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db,
		models.TestCase{InputText: "1", ExpectedOutput: "1\n"},
		models.TestCase{InputText: "2", ExpectedOutput: "2"},
	)
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.OK, Output: "1\n", Compiled: true, ExecutionTime: 0.1},
		"2": {Outcome: execution.OK, Output: "2\r\n", Compiled: true, ExecutionTime: 0.3},
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAccepted, res.Verdict)
	assert.True(t, res.Compiled)
	assert.Equal(t, 2, res.Passed)
	assert.Equal(t, 2, res.Total)
	assert.InDelta(t, 0.4, res.ExecutionTime, 1e-9, "per-test times are summed")
	assert.NotZero(t, res.SubmissionID)
	require.Len(t, res.Tests, 2)
	assert.Equal(t, models.TestStatusPass, res.Tests[0].Status)
}

func TestGradeWrongAnswer(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db,
		models.TestCase{InputText: "1", ExpectedOutput: "1"},
		models.TestCase{InputText: "2", ExpectedOutput: "2"},
	)
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.OK, Output: "1", Compiled: true},
		"2": {Outcome: execution.OK, Output: "wrong", Compiled: true},
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictWrongAnswer, res.Verdict)
	assert.Equal(t, 1, res.Passed)
	assert.Equal(t, models.TestStatusFail, res.Tests[1].Status)
}

func TestGradeTimeoutPrecedence(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db,
		models.TestCase{InputText: "1", ExpectedOutput: "1"},
		models.TestCase{InputText: "2", ExpectedOutput: "2"},
	)
	// First failure is a timeout; the later mismatch must not downgrade it.
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.Timeout, Compiled: true},
		"2": {Outcome: execution.OK, Output: "bogus", Compiled: true},
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictTimeLimit, res.Verdict)
	assert.Equal(t, "Time Limit Exceeded", res.Error)
	assert.Equal(t, models.TestStatusRuntimeError, res.Tests[0].Status)
}

func TestGradeMemoryLimit(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db, models.TestCase{InputText: "1", ExpectedOutput: "1"})
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.OOM, Compiled: true},
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)
	assert.Equal(t, models.VerdictMemoryLimit, res.Verdict)
	assert.Equal(t, "Memory Limit Exceeded", res.Error)
}

func TestGradeRuntimeError(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db, models.TestCase{InputText: "1", ExpectedOutput: "1"})
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.Runtime, Error: "ZeroDivisionError", Compiled: true},
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)
	assert.Equal(t, models.VerdictRuntimeError, res.Verdict)
	assert.Equal(t, "ZeroDivisionError", res.Error)
}

func TestGradeCompileError(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db,
		models.TestCase{InputText: "1", ExpectedOutput: "1"},
		models.TestCase{InputText: "2", ExpectedOutput: "2"},
	)
	eng := &scriptedEngine{probe: execution.Result{
		Outcome: execution.CompileError, Error: "syntax error near line 1",
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictCompileError, res.Verdict)
	assert.False(t, res.Compiled)
	assert.Equal(t, "syntax error near line 1", res.CompileOutput)
	assert.Empty(t, res.Error)
	assert.Equal(t, 0, res.Passed)
	assert.Equal(t, 2, res.Total)
	assert.Empty(t, res.Tests)
	assert.Equal(t, 1, eng.runs, "no test executions after a compile failure")

	var rowCount int64
	require.NoError(t, db.Model(&models.SubmissionTestCase{}).Count(&rowCount).Error)
	assert.Zero(t, rowCount, "no per-test rows for CE")
}

func TestGradeNoTestCases(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db)
	eng := &scriptedEngine{}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAccepted, res.Verdict)
	assert.True(t, res.Compiled)
	assert.Zero(t, res.Passed)
	assert.Zero(t, res.Total)
	assert.Empty(t, res.Tests)
	assert.Zero(t, eng.runs, "nothing executes without tests")
}

func TestGradeKeepsErrorAfterEarlierFailure(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db,
		models.TestCase{InputText: "1", ExpectedOutput: "1"},
		models.TestCase{InputText: "2", ExpectedOutput: "2"},
	)
	// Test 1 mismatches silently; test 2 crashes. The verdict stays WA but
	// the crash message must still surface as the top-level error.
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.OK, Output: "wrong", Compiled: true},
		"2": {Outcome: execution.Runtime, Error: "Traceback: boom", Compiled: true},
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictWrongAnswer, res.Verdict)
	assert.Equal(t, "Traceback: boom", res.Error)
}

func TestGradeDeploymentVeto(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db, models.TestCase{InputText: "1", ExpectedOutput: "1"})
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.OK, Output: "1", Compiled: true},
	}}

	res, err := New(eng, repo, vetoGate{veto: true, msg: "audit failed"}).
		Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictDeploymentFailed, res.Verdict)
	assert.Equal(t, "audit failed", res.Error)
	assert.Equal(t, 1, res.Passed, "tests still count as passed")
}

func TestGradeVetoOnlyAppliesToAccepted(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db, models.TestCase{InputText: "1", ExpectedOutput: "1"})
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"1": {Outcome: execution.OK, Output: "nope", Compiled: true},
	}}

	res, err := New(eng, repo, vetoGate{veto: true, msg: "audit failed"}).
		Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)
	assert.Equal(t, models.VerdictWrongAnswer, res.Verdict)
}

func TestGradeRedactsHiddenCases(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db,
		models.TestCase{InputText: "visible", ExpectedOutput: "1"},
		models.TestCase{InputText: "secret", ExpectedOutput: "2", IsHidden: true},
	)
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"visible": {Outcome: execution.OK, Output: "1", Compiled: true},
		"secret":  {Outcome: execution.OK, Output: "2", Compiled: true},
	}}

	res, err := New(eng, repo, nil).Grade(context.Background(), gradeReq(p))
	require.NoError(t, err)
	require.Len(t, res.Tests, 2)

	assert.Equal(t, "visible", res.Tests[0].Input)
	assert.Equal(t, "[Hidden]", res.Tests[1].Input)
	assert.Equal(t, "[Hidden]", res.Tests[1].Expected)
	assert.Equal(t, "[Hidden]", res.Tests[1].Output)

	// Persisted rows keep the real output.
	var rows []models.SubmissionTestCase
	require.NoError(t, db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[1].Output)
}

func TestEvaluateDoesNotPersistOrRedact(t *testing.T) {
	repo, db := testStore(t)
	p := seedProblem(t, db,
		models.TestCase{InputText: "secret", ExpectedOutput: "2", IsHidden: true},
	)
	eng := &scriptedEngine{byStdin: map[string]execution.Result{
		"secret": {Outcome: execution.OK, Output: "2", Compiled: true},
	}}

	res, err := New(eng, repo, nil).Evaluate(context.Background(), gradeReq(p))
	require.NoError(t, err)

	assert.Equal(t, models.VerdictAccepted, res.Verdict)
	require.Len(t, res.Tests, 1)
	assert.Equal(t, "secret", res.Tests[0].Input, "sample runs are unredacted")

	var subCount int64
	require.NoError(t, db.Model(&models.Submission{}).Count(&subCount).Error)
	assert.Zero(t, subCount)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a\nb", normalize("  a\r\nb \n"))
	assert.Equal(t, normalize("42\n"), normalize("42"))
}
