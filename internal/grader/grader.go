// Package grader turns one submission into a verdict: it compiles the code
// once, runs every test case in order, classifies the outcome, applies the
// deployment gate, and persists the result.
package grader

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"codejudge/internal/deploy"
	"codejudge/internal/execution"
	"codejudge/internal/logging"
	"codejudge/pkg/models"
)

const hiddenPlaceholder = "[Hidden]"

// Boundary messages attached to limit-breaking test rows.
const (
	msgTimeLimit   = "Time Limit Exceeded"
	msgMemoryLimit = "Memory Limit Exceeded"
)

// Store is the persistence the grader needs.
type Store interface {
	TestCases(problemID uint) ([]models.TestCase, error)
	StoreSubmission(sub *models.Submission, rows []models.SubmissionTestCase) error
}

// Gate is the deployment validation hook; nil-safe via the disabled
// validator.
type Gate interface {
	Validate() (bool, string)
}

// TestReport is one test's outcome as shown to the submitter. Hidden cases
// carry placeholders instead of their data.
type TestReport struct {
	TestCaseID    uint    `json:"id"`
	Status        string  `json:"status"`
	Input         string  `json:"input"`
	Expected      string  `json:"expected"`
	Output        string  `json:"output"`
	Error         string  `json:"error,omitempty"`
	ExecutionTime float64 `json:"execution_time"`
	Hidden        bool    `json:"is_hidden"`
}

// Result is a graded submission. ExecutionTime aggregates the per-test wall
// clocks; CompileOutput carries compiler diagnostics when compilation
// failed.
type Result struct {
	SubmissionID  uint         `json:"submission_id,omitempty"`
	Verdict       string       `json:"verdict"`
	Compiled      bool         `json:"compiled"`
	Passed        int          `json:"passed"`
	Total         int          `json:"total"`
	ExecutionTime float64      `json:"execution_time"`
	Error         string       `json:"error,omitempty"`
	CompileOutput string       `json:"compile_error,omitempty"`
	Tests         []TestReport `json:"tests"`
}

// Grader wires the engine, store and deployment gate together.
type Grader struct {
	engine execution.Runner
	store  Store
	gate   Gate
	log    *zap.Logger
}

func New(engine execution.Runner, store Store, gate Gate) *Grader {
	if gate == nil {
		gate = deploy.New(false, 0, nil)
	}
	return &Grader{
		engine: engine,
		store:  store,
		gate:   gate,
		log:    logging.L().Named("grader"),
	}
}

// Request is one submission to grade.
type Request struct {
	UserID      uint
	Problem     *models.Problem
	Files       map[string]string
	Language    string
	TimeLimit   int
	MemoryLimit string
}

// Grade runs the full pipeline and persists the submission. The returned
// Result is already redacted for the submitter.
func (g *Grader) Grade(ctx context.Context, req Request) (*Result, error) {
	cases, err := g.store.TestCases(req.Problem.ID)
	if err != nil {
		return nil, err
	}

	sub := &models.Submission{
		UserID:    req.UserID,
		ProblemID: req.Problem.ID,
		Code:      encodeFiles(req.Files),
		Language:  req.Language,
	}

	// A problem with no tests accepts every submission.
	if len(cases) == 0 {
		sub.Verdict = models.VerdictAccepted
		if err := g.store.StoreSubmission(sub, nil); err != nil {
			return nil, err
		}
		return &Result{
			SubmissionID: sub.ID,
			Verdict:      models.VerdictAccepted,
			Compiled:     true,
			Tests:        []TestReport{},
		}, nil
	}

	// Compile check before touching any test.
	probe := g.engine.Run(ctx, execution.Request{
		Files:       req.Files,
		Language:    req.Language,
		TimeLimit:   req.TimeLimit,
		MemoryLimit: req.MemoryLimit,
	})
	if probe.Outcome == execution.CompileError {
		sub.Verdict = models.VerdictCompileError
		sub.Total = len(cases)
		sub.ErrorMessage = probe.Error
		if err := g.store.StoreSubmission(sub, nil); err != nil {
			return nil, err
		}
		return &Result{
			SubmissionID:  sub.ID,
			Verdict:       models.VerdictCompileError,
			Total:         len(cases),
			CompileOutput: probe.Error,
			Tests:         []TestReport{},
		}, nil
	}
	if probe.Outcome == execution.Internal {
		sub.Verdict = models.VerdictInternalError
		sub.Total = len(cases)
		sub.ErrorMessage = probe.Error
		if err := g.store.StoreSubmission(sub, nil); err != nil {
			return nil, err
		}
		return &Result{
			SubmissionID: sub.ID,
			Verdict:      models.VerdictInternalError,
			Total:        len(cases),
			Error:        probe.Error,
			Tests:        []TestReport{},
		}, nil
	}

	verdict, passed, totalTime, topErr, rows, reports := g.runTests(ctx, req, cases)

	sub.Verdict = verdict
	sub.Passed = passed
	sub.Total = len(cases)
	sub.ExecutionTime = totalTime
	sub.ErrorMessage = topErr

	// Deployment gate can veto an accepted submission.
	if sub.Verdict == models.VerdictAccepted {
		if ok, msg := g.gate.Validate(); !ok {
			sub.Verdict = models.VerdictDeploymentFailed
			sub.ErrorMessage = msg
		}
	}

	if err := g.store.StoreSubmission(sub, rows); err != nil {
		return nil, err
	}

	// Persisted rows keep the real data; only the response is redacted.
	for i := range reports {
		if reports[i].Hidden {
			reports[i].Input = hiddenPlaceholder
			reports[i].Expected = hiddenPlaceholder
			reports[i].Output = hiddenPlaceholder
		}
	}

	g.log.Info("submission graded",
		zap.Uint("submission_id", sub.ID),
		zap.String("verdict", sub.Verdict),
		zap.Int("passed", passed),
		zap.Int("total", len(cases)))

	return &Result{
		SubmissionID:  sub.ID,
		Verdict:       sub.Verdict,
		Compiled:      true,
		Passed:        passed,
		Total:         len(cases),
		ExecutionTime: totalTime,
		Error:         sub.ErrorMessage,
		Tests:         reports,
	}, nil
}

// Evaluate runs a file set against a problem's tests without persisting
// anything or redacting hidden cases. Used by the sample-run endpoint.
func (g *Grader) Evaluate(ctx context.Context, req Request) (*Result, error) {
	cases, err := g.store.TestCases(req.Problem.ID)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return &Result{Verdict: models.VerdictAccepted, Compiled: true, Tests: []TestReport{}}, nil
	}

	probe := g.engine.Run(ctx, execution.Request{
		Files:       req.Files,
		Language:    req.Language,
		TimeLimit:   req.TimeLimit,
		MemoryLimit: req.MemoryLimit,
	})
	switch probe.Outcome {
	case execution.CompileError:
		return &Result{Verdict: models.VerdictCompileError, Total: len(cases), CompileOutput: probe.Error, Tests: []TestReport{}}, nil
	case execution.Internal:
		return &Result{Verdict: models.VerdictInternalError, Total: len(cases), Error: probe.Error, Tests: []TestReport{}}, nil
	}

	// Sample runs show everything, including hidden cases' data.
	verdict, passed, totalTime, topErr, _, reports := g.runTests(ctx, req, cases)
	return &Result{
		Verdict:       verdict,
		Compiled:      true,
		Passed:        passed,
		Total:         len(cases),
		ExecutionTime: totalTime,
		Error:         topErr,
		Tests:         reports,
	}, nil
}

// runTests executes every case in order and classifies the aggregate. The
// first failing case decides the verdict; later failures never upgrade it.
func (g *Grader) runTests(ctx context.Context, req Request, cases []models.TestCase) (
	verdict string, passed int, totalTime float64, topErr string,
	rows []models.SubmissionTestCase, reports []TestReport,
) {
	verdict = models.VerdictAccepted
	rows = make([]models.SubmissionTestCase, 0, len(cases))
	reports = make([]TestReport, 0, len(cases))

	for _, tc := range cases {
		res := g.engine.Run(ctx, execution.Request{
			Files:       req.Files,
			Language:    req.Language,
			Stdin:       tc.InputText,
			TimeLimit:   req.TimeLimit,
			MemoryLimit: req.MemoryLimit,
		})
		totalTime += res.ExecutionTime

		status, caseErr, caseVerdict := classify(res, tc)
		if status == models.TestStatusPass {
			passed++
		} else {
			if verdict == models.VerdictAccepted {
				verdict = caseVerdict
			}
			// Keep the first recorded error even when an earlier failure
			// already fixed the verdict.
			if topErr == "" {
				topErr = caseErr
			}
		}

		rows = append(rows, models.SubmissionTestCase{
			TestCaseID:    tc.ID,
			Status:        status,
			ExecutionTime: res.ExecutionTime,
			MemoryUsed:    res.MemoryUsed,
			Output:        res.Output,
			ErrorMessage:  caseErr,
		})

		reports = append(reports, TestReport{
			TestCaseID:    tc.ID,
			Status:        status,
			Input:         tc.InputText,
			Expected:      tc.ExpectedOutput,
			Output:        res.Output,
			Error:         caseErr,
			ExecutionTime: res.ExecutionTime,
			Hidden:        tc.IsHidden,
		})
	}

	// A mismatch slipping past classification must never read as accepted.
	if passed < len(cases) && verdict == models.VerdictAccepted {
		verdict = models.VerdictWrongAnswer
	}
	return verdict, passed, totalTime, topErr, rows, reports
}

// classify maps one execution result onto a test row status, its error
// message, and the verdict it implies when it is the first failure.
func classify(res execution.Result, tc models.TestCase) (status, caseErr, verdict string) {
	switch res.Outcome {
	case execution.Timeout:
		return models.TestStatusRuntimeError, msgTimeLimit, models.VerdictTimeLimit
	case execution.OOM:
		return models.TestStatusRuntimeError, msgMemoryLimit, models.VerdictMemoryLimit
	case execution.Runtime:
		return models.TestStatusRuntimeError, res.Error, models.VerdictRuntimeError
	case execution.Internal:
		return models.TestStatusRuntimeError, res.Error, models.VerdictInternalError
	case execution.CompileError:
		return models.TestStatusRuntimeError, res.Error, models.VerdictCompileError
	}

	if normalize(res.Output) == normalize(tc.ExpectedOutput) {
		return models.TestStatusPass, "", models.VerdictAccepted
	}
	return models.TestStatusFail, "", models.VerdictWrongAnswer
}

// normalize strips surrounding whitespace and canonicalizes line endings
// before comparison.
func normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

func encodeFiles(files map[string]string) string {
	b, err := json.Marshal(files)
	if err != nil {
		return "{}"
	}
	return string(b)
}
