package models

import (
	"time"
)

// User is a registered account. Password hashes are bcrypt and never
// serialized.
type User struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username     string     `json:"username" gorm:"uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"index;not null"`
	PasswordHash string     `json:"-" gorm:"not null"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	LastLogin    *time.Time `json:"last_login"`
}

// Problem is a judge problem. Examples and Constraints are JSON text columns
// decoded by the repository before they reach a response.
type Problem struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Slug        string `json:"slug" gorm:"uniqueIndex;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	Difficulty  string `json:"difficulty" gorm:"index"`

	// Per-language starter templates shown in the editor.
	TemplateJava       string `json:"template_java" gorm:"type:text"`
	TemplatePython     string `json:"template_python" gorm:"type:text"`
	TemplateC          string `json:"template_c" gorm:"type:text"`
	TemplateCpp        string `json:"template_cpp" gorm:"type:text"`
	TemplateJavascript string `json:"template_javascript" gorm:"type:text"`
	TemplateCsharp     string `json:"template_csharp" gorm:"type:text"`

	Examples    string `json:"-" gorm:"type:text"`
	Constraints string `json:"-" gorm:"type:text"`

	// Execution limits; zero values fall back to service defaults.
	TimeLimit   int    `json:"time_limit"`
	MemoryLimit string `json:"memory_limit"`

	IsPublic  bool       `json:"is_public" gorm:"default:true;index"`
	TestCases []TestCase `json:"-" gorm:"foreignKey:ProblemID"`
}

// TestCase is one input/expected pair owned by a problem. Hidden cases are
// redacted in every user-facing payload.
type TestCase struct {
	ID             uint   `json:"id" gorm:"primarykey"`
	ProblemID      uint   `json:"problem_id" gorm:"index;not null"`
	InputText      string `json:"input_text" gorm:"type:text"`
	ExpectedOutput string `json:"expected_output" gorm:"type:text"`
	IsHidden       bool   `json:"is_hidden" gorm:"default:false"`
	ExecutionOrder int    `json:"execution_order" gorm:"default:0;index"`
}

// Submission is the append-only record of one graded submit. Code holds the
// JSON-serialized file map as received.
type Submission struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	UserID    uint   `json:"user_id" gorm:"index;not null"`
	ProblemID uint   `json:"problem_id" gorm:"index;not null"`
	Code      string `json:"-" gorm:"type:text"`
	Language  string `json:"language" gorm:"not null"`

	Verdict       string  `json:"verdict" gorm:"not null"`
	Passed        int     `json:"passed"`
	Total         int     `json:"total"`
	ExecutionTime float64 `json:"execution_time"`
	MemoryUsed    int64   `json:"memory_used"`
	ErrorMessage  string  `json:"error_message" gorm:"type:text"`
}

// SubmissionTestCase is one per-test outcome row, written in execution order
// within the same transaction as its submission.
type SubmissionTestCase struct {
	ID           uint `json:"id" gorm:"primarykey"`
	SubmissionID uint `json:"submission_id" gorm:"index;not null"`
	TestCaseID   uint `json:"test_case_id" gorm:"not null"`

	Status        string  `json:"status" gorm:"not null"` // PASS, FAIL or RE
	ExecutionTime float64 `json:"execution_time"`
	MemoryUsed    int64   `json:"memory_used"`
	Output        string  `json:"output" gorm:"type:text"`
	ErrorMessage  string  `json:"error_message" gorm:"type:text"`
}

// Verdict codes stored on Submission and reported by the API.
const (
	VerdictAccepted         = "AC"
	VerdictWrongAnswer      = "WA"
	VerdictCompileError     = "CE"
	VerdictRuntimeError     = "RE"
	VerdictTimeLimit        = "TLE"
	VerdictMemoryLimit      = "MLE"
	VerdictDeploymentFailed = "DEP"
	VerdictInternalError    = "IE"
)

// Per-test statuses stored on SubmissionTestCase.
const (
	TestStatusPass         = "PASS"
	TestStatusFail         = "FAIL"
	TestStatusRuntimeError = "RE"
)
