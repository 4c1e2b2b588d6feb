// Package service hosts the workflow services orchestrating the stores
// behind the conversation machine.
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
	"github.com/DemidSergeev/notes-bot/internal/storage"
)

// BuyNotes serves the buy side of the marketplace.
type BuyNotes struct {
	catalog  storage.CatalogStore
	receipts storage.ReceiptStore
}

// NewBuyNotes wires the buy workflow to its stores.
func NewBuyNotes(catalog storage.CatalogStore, receipts storage.ReceiptStore) *BuyNotes {
	return &BuyNotes{catalog: catalog, receipts: receipts}
}

// GetCourses returns every course found for each enumerated year. Years
// without a course are skipped, not an error.
func (s *BuyNotes) GetCourses(ctx context.Context) ([]domain.Course, error) {
	var courses []domain.Course
	for _, year := range domain.Years() {
		course, err := s.catalog.GetCourseByYear(ctx, year)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get course for year %d: %w", year, err)
		}
		courses = append(courses, course)
	}
	return courses, nil
}

// CreatePurchaseReceipt mints a receipt for a note purchase. This is the
// single place a receipt is created. If the note no longer exists the
// call fails with NotFound and nothing is persisted.
func (s *BuyNotes) CreatePurchaseReceipt(
	ctx context.Context,
	buyerID int64,
	buyerName string,
	paymentCredentials string,
	priceRUB int,
	noteID uuid.UUID,
) (domain.Receipt, error) {
	receipt := domain.Receipt{
		ID:                 uuid.New(),
		BuyerID:            buyerID,
		BuyerName:          buyerName,
		PaymentCredentials: paymentCredentials,
		PriceRUB:           priceRUB,
		NoteID:             noteID,
	}

	saved, err := s.receipts.Save(ctx, receipt)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			logger.Debug(ctx, "service.buy_notes", "receipt.note_missing",
				slog.String("note_id", noteID.String()),
				slog.Int64("buyer_id", buyerID),
			)
			return domain.Receipt{}, err
		}
		return domain.Receipt{}, fmt.Errorf("save receipt: %w", err)
	}

	logger.Info(ctx, "service.buy_notes", "receipt.created",
		slog.String("receipt_id", saved.ID.String()),
		slog.Int64("buyer_id", buyerID),
		slog.String("note_title", saved.NoteTitle),
		slog.Int("price_rub", saved.PriceRUB),
	)
	return saved, nil
}
