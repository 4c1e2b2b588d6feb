package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DemidSergeev/notes-bot/internal/apperr"
	"github.com/DemidSergeev/notes-bot/internal/domain"
)

type courseRow struct {
	ID   uuid.UUID `db:"id"`
	Year int       `db:"year"`
}

type subjectRow struct {
	ID       uuid.UUID `db:"id"`
	CourseID uuid.UUID `db:"course_id"`
	Name     string    `db:"name"`
}

type noteRow struct {
	ID        uuid.UUID `db:"id"`
	SubjectID uuid.UUID `db:"subject_id"`
	Title     string    `db:"title"`
	Filename  string    `db:"filename"`
}

type courseworkRow struct {
	ID       uuid.UUID `db:"id"`
	Year     int       `db:"year"`
	Title    string    `db:"title"`
	Filename string    `db:"filename"`
}

// PGCatalog is the Postgres-backed CatalogStore.
type PGCatalog struct {
	db *sqlx.DB
}

// NewPGCatalog wraps an open database handle.
func NewPGCatalog(db *sqlx.DB) *PGCatalog {
	return &PGCatalog{db: db}
}

var _ CatalogStore = (*PGCatalog)(nil)

// GetCourseByID loads a course with its full subject/note graph.
func (s *PGCatalog) GetCourseByID(ctx context.Context, id uuid.UUID) (domain.Course, error) {
	var row courseRow
	err := s.db.GetContext(ctx, &row, `SELECT id, year FROM courses WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Course{}, apperr.NotFound("course")
	}
	if err != nil {
		return domain.Course{}, apperr.Persistence("get course by id", err)
	}
	return s.assembleCourse(ctx, row)
}

// GetCourseByYear loads the course for an enumerated year.
func (s *PGCatalog) GetCourseByYear(ctx context.Context, year domain.CourseYear) (domain.Course, error) {
	var row courseRow
	err := s.db.GetContext(ctx, &row, `SELECT id, year FROM courses WHERE year = $1`, int(year))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Course{}, apperr.NotFound("course")
	}
	if err != nil {
		return domain.Course{}, apperr.Persistence("get course by year", err)
	}
	return s.assembleCourse(ctx, row)
}

func (s *PGCatalog) assembleCourse(ctx context.Context, row courseRow) (domain.Course, error) {
	var subjectRows []subjectRow
	err := s.db.SelectContext(ctx, &subjectRows,
		`SELECT id, course_id, name FROM subjects WHERE course_id = $1 ORDER BY name`, row.ID)
	if err != nil {
		return domain.Course{}, apperr.Persistence("load subjects", err)
	}

	course := domain.Course{ID: row.ID, Year: domain.CourseYear(row.Year)}
	for _, sr := range subjectRows {
		subject, err := s.assembleSubject(ctx, sr)
		if err != nil {
			return domain.Course{}, err
		}
		course.Subjects = append(course.Subjects, subject)
	}
	return course, nil
}

func (s *PGCatalog) assembleSubject(ctx context.Context, row subjectRow) (domain.Subject, error) {
	var noteRows []noteRow
	err := s.db.SelectContext(ctx, &noteRows,
		`SELECT id, subject_id, title, filename FROM notes WHERE subject_id = $1 ORDER BY title`, row.ID)
	if err != nil {
		return domain.Subject{}, apperr.Persistence("load notes", err)
	}
	subject := domain.Subject{ID: row.ID, CourseID: row.CourseID, Name: row.Name}
	for _, nr := range noteRows {
		subject.Notes = append(subject.Notes, domain.Note{ID: nr.ID, Title: nr.Title, Filename: nr.Filename})
	}
	return subject, nil
}

// GetSubjectByID loads a subject with its notes.
func (s *PGCatalog) GetSubjectByID(ctx context.Context, id uuid.UUID) (domain.Subject, error) {
	var row subjectRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, course_id, name FROM subjects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subject{}, apperr.NotFound("subject")
	}
	if err != nil {
		return domain.Subject{}, apperr.Persistence("get subject by id", err)
	}
	return s.assembleSubject(ctx, row)
}

// GetSubjectByName looks a subject up by its case/whitespace-stable name
// within a course.
func (s *PGCatalog) GetSubjectByName(ctx context.Context, courseID uuid.UUID, name string) (domain.Subject, error) {
	var row subjectRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, course_id, name FROM subjects WHERE course_id = $1 AND lower(btrim(name)) = $2`,
		courseID, NormalizeKey(name))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Subject{}, apperr.NotFound("subject")
	}
	if err != nil {
		return domain.Subject{}, apperr.Persistence("get subject by name", err)
	}
	return s.assembleSubject(ctx, row)
}

// GetNoteByID loads a single note.
func (s *PGCatalog) GetNoteByID(ctx context.Context, id uuid.UUID) (domain.Note, error) {
	var row noteRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, subject_id, title, filename FROM notes WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Note{}, apperr.NotFound("note")
	}
	if err != nil {
		return domain.Note{}, apperr.Persistence("get note by id", err)
	}
	return domain.Note{ID: row.ID, Title: row.Title, Filename: row.Filename}, nil
}

// GetNoteByTitle looks a note up by its case/whitespace-stable title.
func (s *PGCatalog) GetNoteByTitle(ctx context.Context, title string) (domain.Note, error) {
	var row noteRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, subject_id, title, filename FROM notes WHERE lower(btrim(title)) = $1`,
		NormalizeKey(title))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Note{}, apperr.NotFound("note")
	}
	if err != nil {
		return domain.Note{}, apperr.Persistence("get note by title", err)
	}
	return domain.Note{ID: row.ID, Title: row.Title, Filename: row.Filename}, nil
}

// SaveCourse commits the whole aggregate in one transaction: the course
// row, the reconciled subject set, and each subject's reconciled notes.
// A failure anywhere rolls everything back.
func (s *PGCatalog) SaveCourse(ctx context.Context, course domain.Course) error {
	if !course.Year.Valid() {
		return apperr.Validation("invalid course year %d", course.Year)
	}
	return s.inTx(ctx, "save course", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO courses (id, year) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET year = EXCLUDED.year`,
			course.ID, int(course.Year))
		if err != nil {
			return fmt.Errorf("upsert course: %w", err)
		}

		keep := make([]uuid.UUID, 0, len(course.Subjects))
		for _, subject := range course.Subjects {
			keep = append(keep, subject.ID)
		}
		if err := deleteMissing(ctx, tx, "subjects", "course_id", course.ID, keep); err != nil {
			return fmt.Errorf("prune subjects: %w", err)
		}

		for _, subject := range course.Subjects {
			if err := upsertSubjectTx(ctx, tx, course.ID, subject); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveSubject commits a subject and its notes transactionally. The parent
// course row must already exist.
func (s *PGCatalog) SaveSubject(ctx context.Context, subject domain.Subject) error {
	return s.inTx(ctx, "save subject", func(tx *sqlx.Tx) error {
		return upsertSubjectTx(ctx, tx, subject.CourseID, subject)
	})
}

// SaveNote attaches or updates a single note under a subject.
func (s *PGCatalog) SaveNote(ctx context.Context, subjectID uuid.UUID, note domain.Note) error {
	return s.inTx(ctx, "save note", func(tx *sqlx.Tx) error {
		return upsertNoteTx(ctx, tx, subjectID, note)
	})
}

func upsertSubjectTx(ctx context.Context, tx *sqlx.Tx, courseID uuid.UUID, subject domain.Subject) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO subjects (id, course_id, name) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET course_id = EXCLUDED.course_id, name = EXCLUDED.name`,
		subject.ID, courseID, subject.Name)
	if err != nil {
		return fmt.Errorf("upsert subject %s: %w", subject.Name, err)
	}

	keep := make([]uuid.UUID, 0, len(subject.Notes))
	for _, note := range subject.Notes {
		keep = append(keep, note.ID)
	}
	if err := deleteMissing(ctx, tx, "notes", "subject_id", subject.ID, keep); err != nil {
		return fmt.Errorf("prune notes: %w", err)
	}

	for _, note := range subject.Notes {
		if err := upsertNoteTx(ctx, tx, subject.ID, note); err != nil {
			return err
		}
	}
	return nil
}

func upsertNoteTx(ctx context.Context, tx *sqlx.Tx, subjectID uuid.UUID, note domain.Note) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO notes (id, subject_id, title, filename) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET subject_id = EXCLUDED.subject_id,
		     title = EXCLUDED.title, filename = EXCLUDED.filename`,
		note.ID, subjectID, note.Title, note.Filename)
	if err != nil {
		return fmt.Errorf("upsert note %s: %w", note.Title, err)
	}
	return nil
}

// deleteMissing removes child rows whose ids are absent from keep.
func deleteMissing(ctx context.Context, tx *sqlx.Tx, table, parentCol string, parentID uuid.UUID, keep []uuid.UUID) error {
	if len(keep) == 0 {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, parentCol), parentID)
		return err
	}
	query, args, err := sqlx.In(
		fmt.Sprintf(`DELETE FROM %s WHERE %s = ? AND id NOT IN (?)`, table, parentCol),
		parentID, keep)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	return err
}

// DeleteCourse removes a course; subjects and notes cascade in the schema.
func (s *PGCatalog) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "delete course", `DELETE FROM courses WHERE id = $1`, id)
}

// DeleteSubject removes a subject; its notes cascade.
func (s *PGCatalog) DeleteSubject(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "delete subject", `DELETE FROM subjects WHERE id = $1`, id)
}

// DeleteNote removes a single note. Receipts referencing it keep their
// denormalized title and resolve as "note unavailable".
func (s *PGCatalog) DeleteNote(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "delete note", `DELETE FROM notes WHERE id = $1`, id)
}

// ListCourseworkYears returns the distinct years coursework exists for.
func (s *PGCatalog) ListCourseworkYears(ctx context.Context) ([]domain.CourseYear, error) {
	var years []int
	err := s.db.SelectContext(ctx, &years,
		`SELECT DISTINCT year FROM coursework ORDER BY year`)
	if err != nil {
		return nil, apperr.Persistence("list coursework years", err)
	}
	out := make([]domain.CourseYear, 0, len(years))
	for _, y := range years {
		out = append(out, domain.CourseYear(y))
	}
	return out, nil
}

// ListCourseworkByYear returns all coursework for a year.
func (s *PGCatalog) ListCourseworkByYear(ctx context.Context, year domain.CourseYear) ([]domain.Coursework, error) {
	var rows []courseworkRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, year, title, filename FROM coursework WHERE year = $1 ORDER BY title`, int(year))
	if err != nil {
		return nil, apperr.Persistence("list coursework", err)
	}
	out := make([]domain.Coursework, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Coursework{ID: r.ID, Year: domain.CourseYear(r.Year), Title: r.Title, Filename: r.Filename})
	}
	return out, nil
}

// GetCourseworkByID loads a single coursework entry.
func (s *PGCatalog) GetCourseworkByID(ctx context.Context, id uuid.UUID) (domain.Coursework, error) {
	var row courseworkRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, year, title, filename FROM coursework WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coursework{}, apperr.NotFound("coursework")
	}
	if err != nil {
		return domain.Coursework{}, apperr.Persistence("get coursework", err)
	}
	return domain.Coursework{ID: row.ID, Year: domain.CourseYear(row.Year), Title: row.Title, Filename: row.Filename}, nil
}

// SaveCoursework upserts a coursework entry.
func (s *PGCatalog) SaveCoursework(ctx context.Context, cw domain.Coursework) error {
	if !cw.Year.Valid() {
		return apperr.Validation("invalid coursework year %d", cw.Year)
	}
	return s.exec(ctx, "save coursework",
		`INSERT INTO coursework (id, year, title, filename) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET year = EXCLUDED.year,
		     title = EXCLUDED.title, filename = EXCLUDED.filename`,
		cw.ID, int(cw.Year), cw.Title, cw.Filename)
}

// DeleteCoursework removes a coursework entry.
func (s *PGCatalog) DeleteCoursework(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "delete coursework", `DELETE FROM coursework WHERE id = $1`, id)
}

func (s *PGCatalog) exec(ctx context.Context, op, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}

func (s *PGCatalog) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Persistence(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return apperr.Persistence(op, err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Persistence(op, err)
	}
	return nil
}
