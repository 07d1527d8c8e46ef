// Package repository is the data access layer: every query the service runs
// goes through here, keeping gorm out of the handlers and grader.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"codejudge/internal/logging"
	"codejudge/pkg/models"
)

// ErrNotFound is returned for missing rows regardless of driver.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicateUsername is returned when a username is already taken.
var ErrDuplicateUsername = errors.New("repository: username taken")

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// Repository bundles all persistence operations over one gorm handle.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// --- users ---

// CreateUser inserts a new account. Duplicate usernames map to
// ErrDuplicateUsername.
func (r *Repository) CreateUser(user *models.User) error {
	var count int64
	if err := r.db.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
		return fmt.Errorf("repository: check username: %w", err)
	}
	if count > 0 {
		return ErrDuplicateUsername
	}
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("repository: create user: %w", err)
	}
	return nil
}

func (r *Repository) UserByUsername(username string) (*models.User, error) {
	var user models.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: user by username: %w", err)
	}
	return &user, nil
}

func (r *Repository) UserByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: user by id: %w", err)
	}
	return &user, nil
}

// TouchLastLogin stamps the user's last successful login.
func (r *Repository) TouchLastLogin(id uint) error {
	now := time.Now()
	return r.db.Model(&models.User{}).Where("id = ?", id).
		Update("last_login", &now).Error
}

// --- problems ---

// ProblemFilter narrows the problems listing.
type ProblemFilter struct {
	Difficulty string
	Search     string // matches title or slug, case-insensitive
	Page       int
	PageSize   int
}

// Problems returns one page of public problems plus the total match count.
// Page numbers start at 1; page size is clamped to [1, 50].
func (r *Repository) Problems(f ProblemFilter) ([]models.Problem, int64, error) {
	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	q := r.db.Model(&models.Problem{}).Where("is_public = ?", true)
	if f.Difficulty != "" {
		q = q.Where("difficulty = ?", f.Difficulty)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		q = q.Where("title LIKE ? OR slug LIKE ?", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("repository: count problems: %w", err)
	}

	var problems []models.Problem
	err := q.Order("id").Offset((page - 1) * size).Limit(size).Find(&problems).Error
	if err != nil {
		return nil, 0, fmt.Errorf("repository: list problems: %w", err)
	}
	return problems, total, nil
}

// ProblemBySlug resolves a public problem. Private problems are
// indistinguishable from missing ones so no caller can execute against them.
func (r *Repository) ProblemBySlug(slug string) (*models.Problem, error) {
	var problem models.Problem
	err := r.db.Where("slug = ? AND is_public = ?", slug, true).First(&problem).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repository: problem by slug: %w", err)
	}
	return &problem, nil
}

// TestCases returns a problem's cases ordered by execution order, then id.
func (r *Repository) TestCases(problemID uint) ([]models.TestCase, error) {
	var cases []models.TestCase
	err := r.db.Where("problem_id = ?", problemID).
		Order("execution_order, id").Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("repository: test cases: %w", err)
	}
	return cases, nil
}

// --- submissions ---

// StoreSubmission persists a submission and its per-test rows in one
// transaction; either everything commits or nothing does.
func (r *Repository) StoreSubmission(sub *models.Submission, rows []models.SubmissionTestCase) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return fmt.Errorf("repository: create submission: %w", err)
		}
		for i := range rows {
			rows[i].SubmissionID = sub.ID
			if err := tx.Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("repository: create submission test row: %w", err)
			}
		}
		return nil
	})
}

// Submissions returns one page of a user's submissions, newest first.
func (r *Repository) Submissions(userID uint, page, pageSize int) ([]models.Submission, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	q := r.db.Model(&models.Submission{}).Where("user_id = ?", userID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("repository: count submissions: %w", err)
	}

	var subs []models.Submission
	err := q.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&subs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("repository: list submissions: %w", err)
	}
	return subs, total, nil
}

// SubmissionRow is a per-test outcome joined with its test case's hidden
// flag, for redaction at the API edge.
type SubmissionRow struct {
	models.SubmissionTestCase
	IsHidden       bool
	ExecutionOrder int
}

// SubmissionDetail fetches one of the user's submissions with its test rows.
// Other users' submissions are indistinguishable from missing ones.
func (r *Repository) SubmissionDetail(userID, id uint) (*models.Submission, []SubmissionRow, error) {
	var sub models.Submission
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("repository: submission detail: %w", err)
	}

	var rows []SubmissionRow
	err = r.db.Model(&models.SubmissionTestCase{}).
		Select("submission_test_cases.*, test_cases.is_hidden, test_cases.execution_order").
		Joins("JOIN test_cases ON test_cases.id = submission_test_cases.test_case_id").
		Where("submission_test_cases.submission_id = ?", sub.ID).
		Order("test_cases.execution_order, test_cases.id").
		Scan(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("repository: submission rows: %w", err)
	}
	return &sub, rows, nil
}

// DecodeJSONList decodes a JSON array column, falling back to an empty list
// on malformed content rather than failing the request.
func DecodeJSONList(raw string) []interface{} {
	if raw == "" {
		return []interface{}{}
	}
	var out []interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		logging.L().Named("repository").Warn("malformed JSON list column, substituting empty list",
			zap.Error(err))
		return []interface{}{}
	}
	if out == nil {
		return []interface{}{}
	}
	return out
}
