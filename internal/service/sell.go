package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DemidSergeev/notes-bot/core/logger"
	"github.com/DemidSergeev/notes-bot/internal/apperr"
	"github.com/DemidSergeev/notes-bot/internal/domain"
	"github.com/DemidSergeev/notes-bot/internal/files"
	"github.com/DemidSergeev/notes-bot/internal/storage"
)

// Sell serves the seller upload workflow.
type Sell struct {
	blobs       *files.Storage
	submissions storage.SubmissionStore
	now         func() time.Time
}

// NewSell wires the sell workflow to the blob and submission stores.
func NewSell(blobs *files.Storage, submissions storage.SubmissionStore) *Sell {
	return &Sell{blobs: blobs, submissions: submissions, now: time.Now}
}

// StorePendingFile validates the declared file name and stores the upload
// under a deterministic name derived from the chosen course, subject,
// seller, and upload time. The returned reference goes into the session
// scratch until the seller sends payment details.
func (s *Sell) StorePendingFile(
	ctx context.Context,
	year domain.CourseYear,
	subjectName string,
	sellerID int64,
	declaredName string,
	data []byte,
) (string, error) {
	if !files.IsDocumentName(declaredName) {
		return "", apperr.Validation("only PDF files are accepted")
	}
	name := files.SubmissionName(year, subjectName, sellerID, s.now())
	ref, err := s.blobs.StorePending(data, name)
	if err != nil {
		return "", apperr.Persistence("store pending file", err)
	}
	logger.Debug(ctx, "service.sell", "upload.stored",
		slog.String("file", ref),
		slog.Int64("seller_id", sellerID),
	)
	return ref, nil
}

// SubmitPayDetails pairs the payment credentials with the previously
// stored file reference and persists the pending-review submission.
func (s *Sell) SubmitPayDetails(
	ctx context.Context,
	sellerID int64,
	sellerName string,
	year domain.CourseYear,
	subjectName string,
	fileRef string,
	paymentDetails string,
) (domain.PendingSubmission, error) {
	sub := domain.PendingSubmission{
		ID:             uuid.New(),
		SellerID:       sellerID,
		SellerName:     sellerName,
		Year:           year,
		SubjectName:    subjectName,
		Filename:       fileRef,
		PaymentDetails: paymentDetails,
		Status:         domain.SubmissionPending,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.submissions.Save(ctx, sub); err != nil {
		return domain.PendingSubmission{}, fmt.Errorf("save submission: %w", err)
	}
	logger.Info(ctx, "service.sell", "submission.created",
		slog.String("submission_id", sub.ID.String()),
		slog.Int64("seller_id", sellerID),
		slog.String("file", fileRef),
	)
	return sub, nil
}
