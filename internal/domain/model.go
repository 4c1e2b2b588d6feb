// Package domain defines the entities exchanged between the catalog,
// receipt, and submission stores and the conversation workflows.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// CourseYear enumerates the six study years a course can belong to.
type CourseYear int

const (
	YearOne CourseYear = iota + 1
	YearTwo
	YearThree
	YearFour
	YearFive
	YearSix
)

// Years lists all valid course years in ascending order.
func Years() []CourseYear {
	return []CourseYear{YearOne, YearTwo, YearThree, YearFour, YearFive, YearSix}
}

// Valid reports whether the year is within the enumerated range.
func (y CourseYear) Valid() bool {
	return y >= YearOne && y <= YearSix
}

// Note is a purchasable lecture notes file attached to a subject.
type Note struct {
	ID       uuid.UUID
	Title    string
	Filename string
}

// Subject groups notes under a course. Name is unique within the course.
// CourseID is a back-reference only and is never used to mutate the course.
type Subject struct {
	ID       uuid.UUID
	CourseID uuid.UUID
	Name     string
	Notes    []Note
}

// HasNote reports whether at least one note with a file is attached.
func (s Subject) HasNote() bool {
	for _, n := range s.Notes {
		if n.Filename != "" {
			return true
		}
	}
	return false
}

// FirstNote returns the first note carrying a file, if any.
func (s Subject) FirstNote() (Note, bool) {
	for _, n := range s.Notes {
		if n.Filename != "" {
			return n, true
		}
	}
	return Note{}, false
}

// Course is an aggregate root owning its subjects. Year is unique per course.
type Course struct {
	ID       uuid.UUID
	Year     CourseYear
	Subjects []Subject
}

// Coursework is a standalone purchasable work tied to a study year.
// Filename may be empty when the work is listed but not yet available.
type Coursework struct {
	ID       uuid.UUID
	Year     CourseYear
	Title    string
	Filename string
}

// Available reports whether the coursework file can be sold.
func (c Coursework) Available() bool {
	return c.Filename != ""
}

// Receipt records a purchase request awaiting manual payment verification.
// NoteTitle and NoteFilename are denormalized at purchase time so the
// receipt stays readable after the note itself is deleted.
type Receipt struct {
	ID                 uuid.UUID
	BuyerID            int64
	BuyerName          string
	PaymentCredentials string
	PriceRUB           int
	NoteID             uuid.UUID
	NoteTitle          string
	NoteFilename       string
	CreatedAt          time.Time
}

// NoteUnavailable reports that the purchased note no longer resolves.
func (r Receipt) NoteUnavailable() bool {
	return r.NoteID == uuid.Nil
}

// SubmissionStatus tracks the review lifecycle of a seller upload.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
)

// PendingSubmission is a seller-uploaded file plus payout credentials
// waiting for administrator review.
type PendingSubmission struct {
	ID             uuid.UUID
	SellerID       int64
	SellerName     string
	Year           CourseYear
	SubjectName    string
	Filename       string
	PaymentDetails string
	Status         SubmissionStatus
	CreatedAt      time.Time
}

// StartAction is a top-level menu action offered on /start.
type StartAction string

const (
	ActionBuy   StartAction = "buy"
	ActionSell  StartAction = "sell"
	ActionAbout StartAction = "about"
)

// StartActions returns the fixed set of top-level actions in menu order.
func StartActions() []StartAction {
	return []StartAction{ActionBuy, ActionSell, ActionAbout}
}
