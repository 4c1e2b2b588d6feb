package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DemidSergeev/notes-bot/internal/apperr"
	"github.com/DemidSergeev/notes-bot/internal/domain"
	"github.com/DemidSergeev/notes-bot/internal/files"
	"github.com/DemidSergeev/notes-bot/internal/storage"
)

func newBlobStorage(t *testing.T) *files.Storage {
	t.Helper()
	root := t.TempDir()
	s, err := files.NewStorage(filepath.Join(root, "pending"), filepath.Join(root, "published"))
	require.NoError(t, err)
	return s
}

func seedCourse(t *testing.T, m *storage.Memory, year domain.CourseYear, subjectName, filename string) domain.Course {
	t.Helper()
	course := domain.Course{ID: uuid.New(), Year: year}
	subject := domain.Subject{ID: uuid.New(), CourseID: course.ID, Name: subjectName}
	if filename != "" {
		subject.Notes = []domain.Note{{ID: uuid.New(), Title: subjectName, Filename: filename}}
	}
	course.Subjects = []domain.Subject{subject}
	require.NoError(t, m.SaveCourse(context.Background(), course))
	return course
}

func TestGetCoursesSkipsMissingYears(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	seedCourse(t, catalog, 1, "Calculus", "calc.pdf")
	seedCourse(t, catalog, 4, "Networks", "")

	buy := NewBuyNotes(catalog, catalog)
	courses, err := buy.GetCourses(ctx)
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, domain.CourseYear(1), courses[0].Year)
	assert.Equal(t, domain.CourseYear(4), courses[1].Year)
}

func TestCreatePurchaseReceipt(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	course := seedCourse(t, catalog, 2, "Calculus", "calc.pdf")
	noteID := course.Subjects[0].Notes[0].ID

	buy := NewBuyNotes(catalog, catalog)
	receipt, err := buy.CreatePurchaseReceipt(ctx, 42, "@buyer", "", 100, noteID)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, receipt.ID)
	assert.Equal(t, int64(42), receipt.BuyerID)
	assert.Equal(t, 100, receipt.PriceRUB)
	assert.Equal(t, "Calculus", receipt.NoteTitle)
	assert.Equal(t, "calc.pdf", receipt.NoteFilename)

	stored, err := catalog.GetByBuyerID(ctx, 42)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, receipt.ID, stored[0].ID)
}

func TestCreatePurchaseReceiptMissingNote(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	buy := NewBuyNotes(catalog, catalog)

	_, err := buy.CreatePurchaseReceipt(ctx, 42, "@buyer", "", 100, uuid.New())
	require.ErrorIs(t, err, apperr.ErrNotFound)

	receipts, err := catalog.GetByBuyerID(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, receipts, "no receipt may exist after a failed purchase")
}

func TestStorePendingFileRejectsNonPDF(t *testing.T) {
	sell := NewSell(newBlobStorage(t), storage.NewMemorySubmissions())

	_, err := sell.StorePendingFile(context.Background(), 2, "Calculus", 42, "notes.docx", []byte("x"))
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestStorePendingFileStoresPDF(t *testing.T) {
	blobs := newBlobStorage(t)
	sell := NewSell(blobs, storage.NewMemorySubmissions())

	ref, err := sell.StorePendingFile(context.Background(), 2, "Calculus", 42, "My Notes.PDF", []byte("%PDF"))
	require.NoError(t, err)
	assert.True(t, blobs.PendingExists(ref))
	assert.Contains(t, ref, "year2__Calculus__user42__")
}

func TestSubmitPayDetails(t *testing.T) {
	ctx := context.Background()
	subs := storage.NewMemorySubmissions()
	sell := NewSell(newBlobStorage(t), subs)

	sub, err := sell.SubmitPayDetails(ctx, 42, "@seller", 2, "Calculus", "year2__Calculus__user42__1.pdf", "card 1234")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionPending, sub.Status)

	pending, err := subs.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, sub.ID, pending[0].ID)
	assert.Equal(t, "card 1234", pending[0].PaymentDetails)
}

func newWelcome(t *testing.T) *StartInteraction {
	t.Helper()
	w, err := NewStartInteraction(filepath.Join(t.TempDir(), "welcome.txt"), "Welcome!")
	require.NoError(t, err)
	return w
}

func TestStartInteractionSeedsAndUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "welcome.txt")
	w, err := NewStartInteraction(path, "Welcome!")
	require.NoError(t, err)

	data := w.GetStartData()
	assert.Equal(t, "Welcome!", data.Message)
	assert.Equal(t, domain.StartActions(), data.Actions)

	require.NoError(t, w.SetWelcome("New greeting"))
	assert.Equal(t, "New greeting", w.GetStartData().Message)

	// The new text must survive a restart.
	w2, err := NewStartInteraction(path, "Welcome!")
	require.NoError(t, err)
	assert.Equal(t, "New greeting", w2.GetStartData().Message)

	assert.Error(t, w.SetWelcome("   "))
}

func TestAdminApprovePublishesSubmission(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	subs := storage.NewMemorySubmissions()
	blobs := newBlobStorage(t)
	admin := NewAdmin(catalog, subs, blobs, newWelcome(t))
	sell := NewSell(blobs, subs)

	ref, err := sell.StorePendingFile(ctx, 3, "Physics", 42, "physics.pdf", []byte("%PDF"))
	require.NoError(t, err)
	sub, err := sell.SubmitPayDetails(ctx, 42, "@seller", 3, "Physics", ref, "card 1234")
	require.NoError(t, err)

	note, err := admin.Approve(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "Physics", note.Title)
	assert.Equal(t, ref, note.Filename)

	assert.False(t, blobs.PendingExists(ref))
	assert.True(t, blobs.Exists(ref))

	course, err := catalog.GetCourseByYear(ctx, 3)
	require.NoError(t, err)
	require.Len(t, course.Subjects, 1)
	assert.Equal(t, "Physics", course.Subjects[0].Name)
	assert.True(t, course.Subjects[0].HasNote())

	got, err := subs.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionApproved, got.Status)

	// A second approval of the same submission must be rejected.
	_, err = admin.Approve(ctx, sub.ID)
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)
}

func TestAdminApproveReplacesExistingNote(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	subs := storage.NewMemorySubmissions()
	blobs := newBlobStorage(t)
	admin := NewAdmin(catalog, subs, blobs, newWelcome(t))
	sell := NewSell(blobs, subs)

	course := seedCourse(t, catalog, 2, "Calculus", "old.pdf")
	oldNoteID := course.Subjects[0].Notes[0].ID

	ref, err := sell.StorePendingFile(ctx, 2, "Calculus", 42, "new.pdf", []byte("%PDF"))
	require.NoError(t, err)
	sub, err := sell.SubmitPayDetails(ctx, 42, "@seller", 2, "Calculus", ref, "card")
	require.NoError(t, err)

	note, err := admin.Approve(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, oldNoteID, note.ID, "existing note keeps its identity, file is replaced")
	assert.Equal(t, ref, note.Filename)

	reloaded, err := catalog.GetCourseByYear(ctx, 2)
	require.NoError(t, err)
	require.Len(t, reloaded.Subjects, 1)
	require.Len(t, reloaded.Subjects[0].Notes, 1)
	assert.Equal(t, ref, reloaded.Subjects[0].Notes[0].Filename)
}

func TestAdminApproveMissingFile(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	subs := storage.NewMemorySubmissions()
	admin := NewAdmin(catalog, subs, newBlobStorage(t), newWelcome(t))

	sub := domain.PendingSubmission{
		ID:          uuid.New(),
		SellerID:    42,
		Year:        2,
		SubjectName: "Calculus",
		Filename:    "gone.pdf",
		Status:      domain.SubmissionPending,
	}
	require.NoError(t, subs.Save(ctx, sub))

	_, err := admin.Approve(ctx, sub.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAdminRelease(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	blobs := newBlobStorage(t)
	admin := NewAdmin(catalog, storage.NewMemorySubmissions(), blobs, newWelcome(t))

	ref, err := blobs.StorePending([]byte("%PDF"), "calc.pdf")
	require.NoError(t, err)
	_, err = blobs.Move(ref)
	require.NoError(t, err)
	seedCourse(t, catalog, 2, "Calculus", ref)

	path, name, err := admin.Release(ctx, 2, " calculus ")
	require.NoError(t, err)
	assert.Equal(t, ref, name)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF"), data)
}

func TestAdminReleaseErrors(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewMemory()
	blobs := newBlobStorage(t)
	admin := NewAdmin(catalog, storage.NewMemorySubmissions(), blobs, newWelcome(t))

	_, _, err := admin.Release(ctx, 9, "Calculus")
	assert.ErrorIs(t, err, apperr.ErrValidationFailed)

	_, _, err = admin.Release(ctx, 2, "Calculus")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// Subject exists but its note file was never published.
	seedCourse(t, catalog, 2, "Calculus", "missing.pdf")
	_, _, err = admin.Release(ctx, 2, "Calculus")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
