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

type receiptRow struct {
	ID                 uuid.UUID     `db:"id"`
	BuyerID            int64         `db:"buyer_id"`
	BuyerName          string        `db:"buyer_name"`
	PaymentCredentials string        `db:"payment_credentials"`
	PriceRUB           int           `db:"price_rub"`
	NoteID             uuid.NullUUID `db:"note_id"`
	NoteTitle          string        `db:"note_title"`
	NoteFilename       string        `db:"note_filename"`
	CreatedAt          time.Time     `db:"created_at"`
}

func (r receiptRow) toDomain() domain.Receipt {
	receipt := domain.Receipt{
		ID:                 r.ID,
		BuyerID:            r.BuyerID,
		BuyerName:          r.BuyerName,
		PaymentCredentials: r.PaymentCredentials,
		PriceRUB:           r.PriceRUB,
		NoteTitle:          r.NoteTitle,
		NoteFilename:       r.NoteFilename,
		CreatedAt:          r.CreatedAt,
	}
	if r.NoteID.Valid {
		receipt.NoteID = r.NoteID.UUID
	}
	return receipt
}

// PGReceipts is the Postgres-backed ReceiptStore.
type PGReceipts struct {
	db      *sqlx.DB
	catalog CatalogStore
}

// NewPGReceipts wires the receipt store to the catalog used for note
// resolution on save.
func NewPGReceipts(db *sqlx.DB, catalog CatalogStore) *PGReceipts {
	return &PGReceipts{db: db, catalog: catalog}
}

var _ ReceiptStore = (*PGReceipts)(nil)

const receiptColumns = `id, buyer_id, buyer_name, payment_credentials, price_rub,
	note_id, note_title, note_filename, created_at`

// GetByID loads a receipt. A receipt whose note was deleted still loads
// with the denormalized title and NoteUnavailable() set.
func (s *PGReceipts) GetByID(ctx context.Context, id uuid.UUID) (domain.Receipt, error) {
	var row receiptRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Receipt{}, apperr.NotFound("receipt")
	}
	if err != nil {
		return domain.Receipt{}, apperr.Persistence("get receipt", err)
	}
	return row.toDomain(), nil
}

// GetByBuyerID returns every receipt of a buyer, most recent first.
func (s *PGReceipts) GetByBuyerID(ctx context.Context, buyerID int64) ([]domain.Receipt, error) {
	var rows []receiptRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+receiptColumns+` FROM receipts WHERE buyer_id = $1 ORDER BY created_at DESC`,
		buyerID)
	if err != nil {
		return nil, apperr.Persistence("get receipts by buyer", err)
	}
	out := make([]domain.Receipt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Save resolves the referenced note, denormalizes its title and file name
// onto the receipt, and persists it. A missing note fails with NotFound
// before anything is written.
func (s *PGReceipts) Save(ctx context.Context, receipt domain.Receipt) (domain.Receipt, error) {
	note, err := s.catalog.GetNoteByID(ctx, receipt.NoteID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return domain.Receipt{}, apperr.NotFound("note")
		}
		return domain.Receipt{}, err
	}

	receipt.NoteTitle = note.Title
	receipt.NoteFilename = note.Filename
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO receipts (`+receiptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		receipt.ID, receipt.BuyerID, receipt.BuyerName, receipt.PaymentCredentials,
		receipt.PriceRUB, receipt.NoteID, receipt.NoteTitle, receipt.NoteFilename,
		receipt.CreatedAt)
	if err != nil {
		return domain.Receipt{}, apperr.Persistence("save receipt", err)
	}
	return receipt, nil
}

// Delete removes a receipt.
func (s *PGReceipts) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM receipts WHERE id = $1`, id); err != nil {
		return apperr.Persistence("delete receipt", err)
	}
	return nil
}
