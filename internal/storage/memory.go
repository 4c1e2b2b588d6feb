package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DemidSergeev/notes-bot/internal/apperr"
	"github.com/DemidSergeev/notes-bot/internal/domain"
)

// Memory implements the catalog and receipt store contracts in process
// memory. It backs tests and local development where a Postgres instance
// is not available. Aggregates are deep-copied on the way in and out so
// callers cannot mutate stored state.
type Memory struct {
	mu         sync.RWMutex
	courses    map[uuid.UUID]domain.Course
	coursework map[uuid.UUID]domain.Coursework
	receipts   map[uuid.UUID]domain.Receipt
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		courses:    make(map[uuid.UUID]domain.Course),
		coursework: make(map[uuid.UUID]domain.Coursework),
		receipts:   make(map[uuid.UUID]domain.Receipt),
	}
}

var (
	_ CatalogStore = (*Memory)(nil)
	_ ReceiptStore = (*Memory)(nil)
)

func cloneCourse(c domain.Course) domain.Course {
	out := c
	out.Subjects = make([]domain.Subject, len(c.Subjects))
	for i, s := range c.Subjects {
		out.Subjects[i] = cloneSubject(s)
	}
	return out
}

func cloneSubject(s domain.Subject) domain.Subject {
	out := s
	out.Notes = append([]domain.Note(nil), s.Notes...)
	return out
}

// GetCourseByID returns the aggregate for a course id.
func (m *Memory) GetCourseByID(_ context.Context, id uuid.UUID) (domain.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	course, ok := m.courses[id]
	if !ok {
		return domain.Course{}, apperr.NotFound("course")
	}
	return cloneCourse(course), nil
}

// GetCourseByYear returns the aggregate for an enumerated year.
func (m *Memory) GetCourseByYear(_ context.Context, year domain.CourseYear) (domain.Course, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, course := range m.courses {
		if course.Year == year {
			return cloneCourse(course), nil
		}
	}
	return domain.Course{}, apperr.NotFound("course")
}

// GetSubjectByID scans the courses for the subject.
func (m *Memory) GetSubjectByID(_ context.Context, id uuid.UUID) (domain.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, course := range m.courses {
		for _, subject := range course.Subjects {
			if subject.ID == id {
				return cloneSubject(subject), nil
			}
		}
	}
	return domain.Subject{}, apperr.NotFound("subject")
}

// GetSubjectByName resolves the case/whitespace-stable name within a course.
func (m *Memory) GetSubjectByName(_ context.Context, courseID uuid.UUID, name string) (domain.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	course, ok := m.courses[courseID]
	if !ok {
		return domain.Subject{}, apperr.NotFound("subject")
	}
	want := NormalizeKey(name)
	for _, subject := range course.Subjects {
		if NormalizeKey(subject.Name) == want {
			return cloneSubject(subject), nil
		}
	}
	return domain.Subject{}, apperr.NotFound("subject")
}

// GetNoteByID scans for a note id.
func (m *Memory) GetNoteByID(_ context.Context, id uuid.UUID) (domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, course := range m.courses {
		for _, subject := range course.Subjects {
			for _, note := range subject.Notes {
				if note.ID == id {
					return note, nil
				}
			}
		}
	}
	return domain.Note{}, apperr.NotFound("note")
}

// GetNoteByTitle resolves the case/whitespace-stable title.
func (m *Memory) GetNoteByTitle(_ context.Context, title string) (domain.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := NormalizeKey(title)
	for _, course := range m.courses {
		for _, subject := range course.Subjects {
			for _, note := range subject.Notes {
				if NormalizeKey(note.Title) == want {
					return note, nil
				}
			}
		}
	}
	return domain.Note{}, apperr.NotFound("note")
}

// SaveCourse replaces the whole aggregate atomically. A year collision
// with a different course fails validation, matching the unique index.
func (m *Memory) SaveCourse(_ context.Context, course domain.Course) error {
	if !course.Year.Valid() {
		return apperr.Validation("invalid course year %d", course.Year)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.courses {
		if existing.Year == course.Year && id != course.ID {
			return apperr.Validation("year %d already taken", course.Year)
		}
	}
	seen := make(map[string]struct{}, len(course.Subjects))
	titles := make(map[string]struct{})
	for _, subject := range course.Subjects {
		key := NormalizeKey(subject.Name)
		if _, dup := seen[key]; dup {
			return apperr.Validation("duplicate subject %q", subject.Name)
		}
		seen[key] = struct{}{}
		for _, note := range subject.Notes {
			title := NormalizeKey(note.Title)
			if _, dup := titles[title]; dup {
				return apperr.Validation("duplicate note title %q", note.Title)
			}
			titles[title] = struct{}{}
		}
	}
	// Note titles are unique across the whole catalog, matching the
	// global unique index.
	for id, existing := range m.courses {
		if id == course.ID {
			continue
		}
		for _, subject := range existing.Subjects {
			for _, note := range subject.Notes {
				if _, clash := titles[NormalizeKey(note.Title)]; clash {
					return apperr.Validation("note title %q already taken", note.Title)
				}
			}
		}
	}
	m.courses[course.ID] = cloneCourse(course)
	return nil
}

// SaveSubject updates a subject inside its owning course.
func (m *Memory) SaveSubject(_ context.Context, subject domain.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	course, ok := m.courses[subject.CourseID]
	if !ok {
		return apperr.NotFound("course")
	}
	for i, existing := range course.Subjects {
		if existing.ID == subject.ID {
			course.Subjects[i] = cloneSubject(subject)
			m.courses[course.ID] = course
			return nil
		}
	}
	course.Subjects = append(course.Subjects, cloneSubject(subject))
	m.courses[course.ID] = course
	return nil
}

// SaveNote attaches or updates a note under a subject. The title must be
// free everywhere but on the note itself.
func (m *Memory) SaveNote(_ context.Context, subjectID uuid.UUID, note domain.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := NormalizeKey(note.Title)
	for _, course := range m.courses {
		for _, subject := range course.Subjects {
			for _, existing := range subject.Notes {
				if existing.ID != note.ID && NormalizeKey(existing.Title) == want {
					return apperr.Validation("note title %q already taken", note.Title)
				}
			}
		}
	}
	for cid, course := range m.courses {
		for si, subject := range course.Subjects {
			if subject.ID != subjectID {
				continue
			}
			for ni, existing := range subject.Notes {
				if existing.ID == note.ID {
					course.Subjects[si].Notes[ni] = note
					m.courses[cid] = course
					return nil
				}
			}
			course.Subjects[si].Notes = append(course.Subjects[si].Notes, note)
			m.courses[cid] = course
			return nil
		}
	}
	return apperr.NotFound("subject")
}

// DeleteCourse drops the aggregate with all children.
func (m *Memory) DeleteCourse(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.courses, id)
	return nil
}

// DeleteSubject removes a subject and its notes.
func (m *Memory) DeleteSubject(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cid, course := range m.courses {
		for i, subject := range course.Subjects {
			if subject.ID == id {
				course.Subjects = append(course.Subjects[:i], course.Subjects[i+1:]...)
				m.courses[cid] = course
				return nil
			}
		}
	}
	return nil
}

// DeleteNote removes a note, leaving receipts that reference it intact.
func (m *Memory) DeleteNote(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for cid, course := range m.courses {
		for si, subject := range course.Subjects {
			for ni, note := range subject.Notes {
				if note.ID == id {
					course.Subjects[si].Notes = append(subject.Notes[:ni], subject.Notes[ni+1:]...)
					m.courses[cid] = course
					return nil
				}
			}
		}
	}
	return nil
}

// ListCourseworkYears returns distinct years, ascending.
func (m *Memory) ListCourseworkYears(_ context.Context) ([]domain.CourseYear, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[domain.CourseYear]struct{})
	for _, cw := range m.coursework {
		seen[cw.Year] = struct{}{}
	}
	out := make([]domain.CourseYear, 0, len(seen))
	for year := range seen {
		out = append(out, year)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// ListCourseworkByYear returns coursework for a year sorted by title.
func (m *Memory) ListCourseworkByYear(_ context.Context, year domain.CourseYear) ([]domain.Coursework, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Coursework
	for _, cw := range m.coursework {
		if cw.Year == year {
			out = append(out, cw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

// GetCourseworkByID loads one coursework entry.
func (m *Memory) GetCourseworkByID(_ context.Context, id uuid.UUID) (domain.Coursework, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cw, ok := m.coursework[id]
	if !ok {
		return domain.Coursework{}, apperr.NotFound("coursework")
	}
	return cw, nil
}

// SaveCoursework upserts a coursework entry.
func (m *Memory) SaveCoursework(_ context.Context, cw domain.Coursework) error {
	if !cw.Year.Valid() {
		return apperr.Validation("invalid coursework year %d", cw.Year)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coursework[cw.ID] = cw
	return nil
}

// DeleteCoursework removes a coursework entry.
func (m *Memory) DeleteCoursework(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.coursework, id)
	return nil
}

// GetByID loads a receipt.
func (m *Memory) GetByID(_ context.Context, id uuid.UUID) (domain.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	receipt, ok := m.receipts[id]
	if !ok {
		return domain.Receipt{}, apperr.NotFound("receipt")
	}
	return receipt, nil
}

// GetByBuyerID returns all of a buyer's receipts, most recent first.
func (m *Memory) GetByBuyerID(_ context.Context, buyerID int64) ([]domain.Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Receipt
	for _, receipt := range m.receipts {
		if receipt.BuyerID == buyerID {
			out = append(out, receipt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Save resolves the note, denormalizes it onto the receipt, and stores it.
func (m *Memory) Save(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	note, err := m.GetNoteByID(ctx, receipt.NoteID)
	if err != nil {
		return domain.Receipt{}, err
	}
	receipt.NoteTitle = note.Title
	receipt.NoteFilename = note.Filename
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[receipt.ID] = receipt
	return receipt, nil
}

// Delete removes a receipt.
func (m *Memory) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.receipts, id)
	return nil
}

// MemorySubmissions implements SubmissionStore in process memory.
type MemorySubmissions struct {
	mu          sync.RWMutex
	submissions map[uuid.UUID]domain.PendingSubmission
}

// NewMemorySubmissions creates an empty in-memory submission store.
func NewMemorySubmissions() *MemorySubmissions {
	return &MemorySubmissions{submissions: make(map[uuid.UUID]domain.PendingSubmission)}
}

var _ SubmissionStore = (*MemorySubmissions)(nil)

// Save persists a pending submission.
func (m *MemorySubmissions) Save(_ context.Context, sub domain.PendingSubmission) error {
	if sub.Status == "" {
		sub.Status = domain.SubmissionPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[sub.ID] = sub
	return nil
}

// GetByID loads a submission.
func (m *MemorySubmissions) GetByID(_ context.Context, id uuid.UUID) (domain.PendingSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[id]
	if !ok {
		return domain.PendingSubmission{}, apperr.NotFound("submission")
	}
	return sub, nil
}

// ListPending returns pending submissions, oldest first.
func (m *MemorySubmissions) ListPending(_ context.Context) ([]domain.PendingSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PendingSubmission
	for _, sub := range m.submissions {
		if sub.Status == domain.SubmissionPending {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkApproved flips a submission to approved.
func (m *MemorySubmissions) MarkApproved(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return apperr.NotFound("submission")
	}
	sub.Status = domain.SubmissionApproved
	m.submissions[id] = sub
	return nil
}
