// Package storage persists the catalog, receipt, and submission
// aggregates. The Postgres implementation commits each aggregate root in
// a single transaction; the in-memory implementation mirrors the same
// contracts for tests and development.
package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/DemidSergeev/notes-bot/internal/domain"
)

// CatalogStore persists Course/Subject/Note aggregates and coursework.
//
// SaveCourse persists the course row and, in the same transaction, every
// subject it currently references (transitively every note). Subjects or
// notes dropped from the aggregate since the last save are removed.
// Deletes cascade to owned children.
type CatalogStore interface {
	GetCourseByID(ctx context.Context, id uuid.UUID) (domain.Course, error)
	GetCourseByYear(ctx context.Context, year domain.CourseYear) (domain.Course, error)
	GetSubjectByID(ctx context.Context, id uuid.UUID) (domain.Subject, error)
	GetSubjectByName(ctx context.Context, courseID uuid.UUID, name string) (domain.Subject, error)
	GetNoteByID(ctx context.Context, id uuid.UUID) (domain.Note, error)
	GetNoteByTitle(ctx context.Context, title string) (domain.Note, error)

	SaveCourse(ctx context.Context, course domain.Course) error
	SaveSubject(ctx context.Context, subject domain.Subject) error
	SaveNote(ctx context.Context, subjectID uuid.UUID, note domain.Note) error
	DeleteCourse(ctx context.Context, id uuid.UUID) error
	DeleteSubject(ctx context.Context, id uuid.UUID) error
	DeleteNote(ctx context.Context, id uuid.UUID) error

	ListCourseworkYears(ctx context.Context) ([]domain.CourseYear, error)
	ListCourseworkByYear(ctx context.Context, year domain.CourseYear) ([]domain.Coursework, error)
	GetCourseworkByID(ctx context.Context, id uuid.UUID) (domain.Coursework, error)
	SaveCoursework(ctx context.Context, cw domain.Coursework) error
	DeleteCoursework(ctx context.Context, id uuid.UUID) error
}

// ReceiptStore persists purchase receipts.
//
// GetByBuyerID returns all receipts for the buyer, most recent first.
// Save resolves the referenced note before commit and fails with NotFound
// if the note no longer exists; nothing is persisted in that case.
type ReceiptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Receipt, error)
	GetByBuyerID(ctx context.Context, buyerID int64) ([]domain.Receipt, error)
	Save(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SubmissionStore persists pending-review seller submissions.
type SubmissionStore interface {
	Save(ctx context.Context, sub domain.PendingSubmission) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.PendingSubmission, error)
	ListPending(ctx context.Context) ([]domain.PendingSubmission, error)
	MarkApproved(ctx context.Context, id uuid.UUID) error
}

// NormalizeKey folds a natural key (subject name, note title) into its
// case- and whitespace-stable lookup form. Matches lower(btrim(x)) used
// by the Postgres lookups and unique indexes.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
