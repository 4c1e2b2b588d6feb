package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DemidSergeev/notes-bot/core/logger"
	"github.com/DemidSergeev/notes-bot/internal/apperr"
	"github.com/DemidSergeev/notes-bot/internal/domain"
	"github.com/DemidSergeev/notes-bot/internal/files"
	"github.com/DemidSergeev/notes-bot/internal/storage"
)

// Admin serves the administrator review surface: listing pending
// submissions, approving them into the catalog, and releasing note files
// to buyers. Authorization is enforced once at the transport layer, not
// here.
type Admin struct {
	catalog     storage.CatalogStore
	submissions storage.SubmissionStore
	blobs       *files.Storage
	welcome     *StartInteraction
}

// NewAdmin wires the admin workflows.
func NewAdmin(catalog storage.CatalogStore, submissions storage.SubmissionStore, blobs *files.Storage, welcome *StartInteraction) *Admin {
	return &Admin{catalog: catalog, submissions: submissions, blobs: blobs, welcome: welcome}
}

// ListPending returns all submissions awaiting review, oldest first.
func (s *Admin) ListPending(ctx context.Context) ([]domain.PendingSubmission, error) {
	return s.submissions.ListPending(ctx)
}

// Approve promotes a pending submission: the blob moves from the pending
// area to the published area, the note is attached to its subject in the
// catalog (creating the course or subject if needed) within a single
// aggregate save, and the submission is marked approved.
func (s *Admin) Approve(ctx context.Context, submissionID uuid.UUID) (domain.Note, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return domain.Note{}, err
	}
	if sub.Status != domain.SubmissionPending {
		return domain.Note{}, apperr.Validation("submission %s already reviewed", submissionID)
	}
	if !s.blobs.PendingExists(sub.Filename) {
		return domain.Note{}, apperr.NotFound("pending file")
	}

	publishedRef, err := s.blobs.Move(sub.Filename)
	if err != nil {
		return domain.Note{}, apperr.Persistence("publish file", err)
	}

	course, err := s.catalog.GetCourseByYear(ctx, sub.Year)
	if errors.Is(err, apperr.ErrNotFound) {
		course = domain.Course{ID: uuid.New(), Year: sub.Year}
	} else if err != nil {
		return domain.Note{}, fmt.Errorf("load course: %w", err)
	}

	note := attachNote(&course, sub.SubjectName, publishedRef)
	if err := s.catalog.SaveCourse(ctx, course); err != nil {
		return domain.Note{}, fmt.Errorf("save course aggregate: %w", err)
	}
	if err := s.submissions.MarkApproved(ctx, submissionID); err != nil {
		return domain.Note{}, err
	}

	logger.Info(ctx, "service.admin", "submission.approved",
		slog.String("submission_id", submissionID.String()),
		slog.String("file", publishedRef),
		slog.Int("year", int(sub.Year)),
		slog.String("subject", sub.SubjectName),
	)
	return note, nil
}

// attachNote places the published file under the named subject, creating
// the subject when absent. The note carries the subject name as title; an
// existing note for that subject gets its file replaced.
func attachNote(course *domain.Course, subjectName, filename string) domain.Note {
	want := storage.NormalizeKey(subjectName)
	for i, subject := range course.Subjects {
		if storage.NormalizeKey(subject.Name) != want {
			continue
		}
		for j, note := range subject.Notes {
			if storage.NormalizeKey(note.Title) == want {
				course.Subjects[i].Notes[j].Filename = filename
				return course.Subjects[i].Notes[j]
			}
		}
		note := domain.Note{ID: uuid.New(), Title: subject.Name, Filename: filename}
		course.Subjects[i].Notes = append(course.Subjects[i].Notes, note)
		return note
	}
	note := domain.Note{ID: uuid.New(), Title: subjectName, Filename: filename}
	course.Subjects = append(course.Subjects, domain.Subject{
		ID:       uuid.New(),
		CourseID: course.ID,
		Name:     subjectName,
		Notes:    []domain.Note{note},
	})
	return note
}

// Release resolves the note sold for (year, subject) and returns its
// published file path and display name for the transport to send.
func (s *Admin) Release(ctx context.Context, year domain.CourseYear, subjectName string) (path, displayName string, err error) {
	if !year.Valid() {
		return "", "", apperr.Validation("invalid course year %d", year)
	}
	course, err := s.catalog.GetCourseByYear(ctx, year)
	if err != nil {
		return "", "", err
	}
	subject, err := s.catalog.GetSubjectByName(ctx, course.ID, subjectName)
	if err != nil {
		return "", "", err
	}
	note, ok := subject.FirstNote()
	if !ok {
		return "", "", apperr.NotFound("note")
	}
	if !s.blobs.Exists(note.Filename) {
		return "", "", apperr.NotFound("note file")
	}
	return s.blobs.PublishedPath(note.Filename), note.Filename, nil
}

// SetWelcome updates the /start welcome message.
func (s *Admin) SetWelcome(text string) error {
	return s.welcome.SetWelcome(text)
}
