package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DemidSergeev/notes-bot/internal/apperr"
	"github.com/DemidSergeev/notes-bot/internal/domain"
)

type submissionRow struct {
	ID             uuid.UUID `db:"id"`
	SellerID       int64     `db:"seller_id"`
	SellerName     string    `db:"seller_name"`
	Year           int       `db:"year"`
	SubjectName    string    `db:"subject_name"`
	Filename       string    `db:"filename"`
	PaymentDetails string    `db:"payment_details"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r submissionRow) toDomain() domain.PendingSubmission {
	return domain.PendingSubmission{
		ID:             r.ID,
		SellerID:       r.SellerID,
		SellerName:     r.SellerName,
		Year:           domain.CourseYear(r.Year),
		SubjectName:    r.SubjectName,
		Filename:       r.Filename,
		PaymentDetails: r.PaymentDetails,
		Status:         domain.SubmissionStatus(r.Status),
		CreatedAt:      r.CreatedAt,
	}
}

// PGSubmissions is the Postgres-backed SubmissionStore.
type PGSubmissions struct {
	db *sqlx.DB
}

// NewPGSubmissions wraps an open database handle.
func NewPGSubmissions(db *sqlx.DB) *PGSubmissions {
	return &PGSubmissions{db: db}
}

var _ SubmissionStore = (*PGSubmissions)(nil)

const submissionColumns = `id, seller_id, seller_name, year, subject_name,
	filename, payment_details, status, created_at`

// Save persists a pending submission.
func (s *PGSubmissions) Save(ctx context.Context, sub domain.PendingSubmission) error {
	if sub.Status == "" {
		sub.Status = domain.SubmissionPending
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_submissions (`+submissionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.SellerID, sub.SellerName, int(sub.Year), sub.SubjectName,
		sub.Filename, sub.PaymentDetails, string(sub.Status), sub.CreatedAt)
	if err != nil {
		return apperr.Persistence("save submission", err)
	}
	return nil
}

// GetByID loads a submission.
func (s *PGSubmissions) GetByID(ctx context.Context, id uuid.UUID) (domain.PendingSubmission, error) {
	var row submissionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+submissionColumns+` FROM pending_submissions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PendingSubmission{}, apperr.NotFound("submission")
	}
	if err != nil {
		return domain.PendingSubmission{}, apperr.Persistence("get submission", err)
	}
	return row.toDomain(), nil
}

// ListPending returns submissions awaiting review, oldest first.
func (s *PGSubmissions) ListPending(ctx context.Context) ([]domain.PendingSubmission, error) {
	var rows []submissionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+submissionColumns+` FROM pending_submissions
		 WHERE status = $1 ORDER BY created_at`, string(domain.SubmissionPending))
	if err != nil {
		return nil, apperr.Persistence("list pending submissions", err)
	}
	out := make([]domain.PendingSubmission, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// MarkApproved flips a submission to approved.
func (s *PGSubmissions) MarkApproved(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_submissions SET status = $1 WHERE id = $2`,
		string(domain.SubmissionApproved), id)
	if err != nil {
		return apperr.Persistence("approve submission", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.NotFound("submission")
	}
	return nil
}
