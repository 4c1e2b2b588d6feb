package flow

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DemidSergeev/notes-bot/internal/correlation"
	"github.com/DemidSergeev/notes-bot/internal/domain"
	"github.com/DemidSergeev/notes-bot/internal/files"
	"github.com/DemidSergeev/notes-bot/internal/service"
	"github.com/DemidSergeev/notes-bot/internal/session"
	"github.com/DemidSergeev/notes-bot/internal/storage"
)

type captureNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *captureNotifier) NotifyAdmin(_ context.Context, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, text)
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

type fixture struct {
	machine  *Machine
	catalog  *storage.Memory
	subs     *storage.MemorySubmissions
	sessions *session.Manager
	tokens   *correlation.Store
	notes    *captureNotifier
	blobs    *files.Storage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	blobs, err := files.NewStorage(filepath.Join(root, "pending"), filepath.Join(root, "published"))
	require.NoError(t, err)
	welcome, err := service.NewStartInteraction(filepath.Join(root, "welcome.txt"), "Welcome!")
	require.NoError(t, err)

	catalog := storage.NewMemory()
	subs := storage.NewMemorySubmissions()
	sessions := session.NewManager()
	tokens := correlation.NewStore(time.Hour)
	t.Cleanup(tokens.Close)
	notes := &captureNotifier{}

	machine := NewMachine(
		sessions,
		tokens,
		catalog,
		service.NewBuyNotes(catalog, catalog),
		service.NewSell(blobs, subs),
		welcome,
		notes,
		Config{PriceRUB: 100, PaymentDetails: "Card 1234 5678", AboutText: "About us text."},
	)
	return &fixture{
		machine:  machine,
		catalog:  catalog,
		subs:     subs,
		sessions: sessions,
		tokens:   tokens,
		notes:    notes,
		blobs:    blobs,
	}
}

func (f *fixture) seedCourse(t *testing.T, year domain.CourseYear, subjectName, filename string) domain.Course {
	t.Helper()
	course := domain.Course{ID: uuid.New(), Year: year}
	subject := domain.Subject{ID: uuid.New(), CourseID: course.ID, Name: subjectName}
	if filename != "" {
		subject.Notes = []domain.Note{{ID: uuid.New(), Title: subjectName, Filename: filename}}
	}
	course.Subjects = []domain.Subject{subject}
	require.NoError(t, f.catalog.SaveCourse(context.Background(), course))
	return course
}

var buyer = User{ID: 42, Name: "@buyer"}

func menu(action Action) Event         { return Event{Kind: KindMenu, Action: action} }
func yearPick(a Action, y int) Event   { return Event{Kind: KindMenu, Action: a, Year: y} }
func tokenPress(token string) Event    { return Event{Kind: KindToken, Action: ActionPick, Token: token} }
func textEvent(text string) Event      { return Event{Kind: KindText, Text: text} }
func docEvent(name string, b []byte) Event {
	return Event{Kind: KindDocument, Document: Document{Name: name, Data: b}}
}

// tokenButton returns the first token-carrying button whose label
// contains want.
func tokenButton(t *testing.T, r Reply, want string) Button {
	t.Helper()
	for _, b := range r.Buttons {
		if b.Action == ActionPick && strings.Contains(b.Label, want) {
			return b
		}
	}
	t.Fatalf("no token button matching %q in %v", want, r.Buttons)
	return Button{}
}

func TestStartShowsWelcomeAndActions(t *testing.T) {
	f := newFixture(t)
	r := f.machine.Start(buyer)

	assert.Equal(t, "Welcome!", r.Text)
	require.Len(t, r.Buttons, 3)
	assert.Equal(t, ActionBuy, r.Buttons[0].Action)
	assert.Equal(t, ActionSell, r.Buttons[1].Action)
	assert.Equal(t, ActionAbout, r.Buttons[2].Action)
	assert.Equal(t, session.StateChoosingAction, f.sessions.Get(buyer.ID).State)
}

func TestBuyNotesEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCourse(t, 2, "Calculus", "calc.pdf")
	f.machine.Start(buyer)

	r, err := f.machine.Handle(ctx, buyer, menu(ActionBuy))
	require.NoError(t, err)
	assert.Equal(t, msgChooseType, r.Text)

	r, err = f.machine.Handle(ctx, buyer, menu(ActionBuyNotes))
	require.NoError(t, err)
	assert.Equal(t, msgChooseCourse, r.Text)
	require.NotEmpty(t, r.Buttons)
	assert.Equal(t, "Year 2", r.Buttons[0].Label)

	r, err = f.machine.Handle(ctx, buyer, yearPick(ActionPickCourseBuy, 2))
	require.NoError(t, err)
	assert.Equal(t, msgChooseSubject, r.Text)
	btn := tokenButton(t, r, "Calculus")
	assert.True(t, strings.HasPrefix(btn.Label, "✅"), "subject with notes is marked available")

	r, err = f.machine.Handle(ctx, buyer, tokenPress(btn.Data))
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Card 1234 5678")
	assert.Contains(t, r.Text, "up to 3 hours")

	receipts, err := f.catalog.GetByBuyerID(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	assert.Equal(t, 100, receipts[0].PriceRUB)
	assert.Equal(t, "Calculus", receipts[0].NoteTitle)

	assert.Equal(t, 1, f.notes.count(), "admin is notified of the purchase")
	assert.Equal(t, session.StateIdle, f.sessions.Get(buyer.ID).State)
}

func TestBuySubjectWithoutNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCourse(t, 2, "History", "")
	f.machine.Start(buyer)

	_, err := f.machine.Handle(ctx, buyer, menu(ActionBuy))
	require.NoError(t, err)
	_, err = f.machine.Handle(ctx, buyer, menu(ActionBuyNotes))
	require.NoError(t, err)
	r, err := f.machine.Handle(ctx, buyer, yearPick(ActionPickCourseBuy, 2))
	require.NoError(t, err)
	btn := tokenButton(t, r, "History")
	assert.True(t, strings.HasPrefix(btn.Label, "❌"))

	r, err = f.machine.Handle(ctx, buyer, tokenPress(btn.Data))
	require.NoError(t, err)
	assert.Equal(t, msgNoteMissing, r.Text)

	receipts, err := f.catalog.GetByBuyerID(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, receipts, "no receipt without a purchasable note")
}

func TestTwoUsersTokensDoNotCrossTalk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	course := domain.Course{ID: uuid.New(), Year: 2}
	course.Subjects = []domain.Subject{
		{ID: uuid.New(), CourseID: course.ID, Name: "Algorithms",
			Notes: []domain.Note{{ID: uuid.New(), Title: "Algorithms", Filename: "algo.pdf"}}},
		{ID: uuid.New(), CourseID: course.ID, Name: "Databases",
			Notes: []domain.Note{{ID: uuid.New(), Title: "Databases", Filename: "db.pdf"}}},
	}
	require.NoError(t, f.catalog.SaveCourse(ctx, course))

	users := []User{{ID: 42, Name: "@a"}, {ID: 43, Name: "@b"}}
	wants := []string{"Algorithms", "Databases"}

	// Each user renders their own subject menu and so holds their own
	// token batch for the same subjects.
	pick := make([]string, len(users))
	for i, u := range users {
		f.machine.Start(u)
		_, err := f.machine.Handle(ctx, u, menu(ActionBuy))
		require.NoError(t, err)
		_, err = f.machine.Handle(ctx, u, menu(ActionBuyNotes))
		require.NoError(t, err)
		r, err := f.machine.Handle(ctx, u, yearPick(ActionPickCourseBuy, 2))
		require.NoError(t, err)
		pick[i] = tokenButton(t, r, wants[i]).Data
	}
	require.NotEqual(t, pick[0], pick[1])

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(u User, token string) {
			defer wg.Done()
			_, err := f.machine.Handle(ctx, u, tokenPress(token))
			assert.NoError(t, err)
		}(u, pick[i])
	}
	wg.Wait()

	for i, u := range users {
		receipts, err := f.catalog.GetByBuyerID(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, receipts, 1, "user %d", u.ID)
		assert.Equal(t, wants[i], receipts[0].NoteTitle, "each buyer gets the subject they picked")
	}
	assert.Equal(t, 2, f.notes.count())
}

func TestStaleTokenPress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCourse(t, 2, "Calculus", "calc.pdf")
	f.machine.Start(buyer)

	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuy))
	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuyNotes))
	r, err := f.machine.Handle(ctx, buyer, yearPick(ActionPickCourseBuy, 2))
	require.NoError(t, err)
	btn := tokenButton(t, r, "Calculus")

	_, err = f.machine.Handle(ctx, buyer, tokenPress(btn.Data))
	require.NoError(t, err)

	// Pressing the same button again: the token was consumed, and the
	// session is idle, so the machine restarts the conversation first.
	f.sessions.SetState(buyer.ID, session.StateChoosingSubj)
	r, err = f.machine.Handle(ctx, buyer, tokenPress(btn.Data))
	require.NoError(t, err)
	assert.Equal(t, msgStaleButton, r.Text)
	assert.Equal(t, session.StateIdle, f.sessions.Get(buyer.ID).State)

	receipts, err := f.catalog.GetByBuyerID(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Len(t, receipts, 1, "double press must not create a second receipt")
}

func TestSellFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCourse(t, 3, "Physics", "")
	f.machine.Start(seller)

	r, err := f.machine.Handle(ctx, seller, menu(ActionSell))
	require.NoError(t, err)
	assert.Equal(t, msgChooseCourseSel, r.Text)

	r, err = f.machine.Handle(ctx, seller, yearPick(ActionPickCourseSell, 3))
	require.NoError(t, err)
	btn := tokenButton(t, r, "Physics")

	r, err = f.machine.Handle(ctx, seller, tokenPress(btn.Data))
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Physics")
	assert.Equal(t, session.StateSellUpload, f.sessions.Get(seller.ID).State)

	// Text instead of a document: re-prompt, no transition.
	r, err = f.machine.Handle(ctx, seller, textEvent("here it comes"))
	require.NoError(t, err)
	assert.Equal(t, msgAwaitDocument, r.Text)
	assert.Equal(t, session.StateSellUpload, f.sessions.Get(seller.ID).State)

	// Wrong format: stays in upload state.
	r, err = f.machine.Handle(ctx, seller, docEvent("notes.docx", []byte("x")))
	require.NoError(t, err)
	assert.Equal(t, msgPDFOnly, r.Text)
	assert.Equal(t, session.StateSellUpload, f.sessions.Get(seller.ID).State)

	r, err = f.machine.Handle(ctx, seller, docEvent("notes.pdf", []byte("%PDF")))
	require.NoError(t, err)
	assert.Equal(t, msgFileQueued, r.Text)
	assert.Equal(t, session.StateSellPayDetails, f.sessions.Get(seller.ID).State)

	// A document instead of pay details: re-prompt.
	r, err = f.machine.Handle(ctx, seller, docEvent("again.pdf", []byte("%PDF")))
	require.NoError(t, err)
	assert.Equal(t, msgAwaitPayDetails, r.Text)

	r, err = f.machine.Handle(ctx, seller, textEvent("card 1234"))
	require.NoError(t, err)
	assert.Equal(t, msgSubmitted, r.Text)
	assert.Equal(t, session.StateIdle, f.sessions.Get(seller.ID).State)

	pending, err := f.subs.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, seller.ID, pending[0].SellerID)
	assert.Equal(t, "Physics", pending[0].SubjectName)
	assert.Equal(t, "card 1234", pending[0].PaymentDetails)
	assert.True(t, f.blobs.PendingExists(pending[0].Filename))

	assert.Equal(t, 1, f.notes.count(), "admin is notified of the submission")
}

var seller = User{ID: 77, Name: "@seller"}

func TestCourseworkFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	available := domain.Coursework{ID: uuid.New(), Year: 2, Title: "Databases", Filename: "db.pdf"}
	missing := domain.Coursework{ID: uuid.New(), Year: 2, Title: "Algorithms"}
	require.NoError(t, f.catalog.SaveCoursework(ctx, available))
	require.NoError(t, f.catalog.SaveCoursework(ctx, missing))

	f.machine.Start(buyer)
	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuy))
	r, err := f.machine.Handle(ctx, buyer, menu(ActionBuyCoursework))
	require.NoError(t, err)
	assert.Equal(t, msgChooseCwCourse, r.Text)

	r, err = f.machine.Handle(ctx, buyer, yearPick(ActionPickCwYear, 2))
	require.NoError(t, err)
	assert.Equal(t, msgChooseCw, r.Text)

	btn := tokenButton(t, r, "Databases")
	assert.True(t, strings.HasSuffix(btn.Label, "✅"))
	r, err = f.machine.Handle(ctx, buyer, tokenPress(btn.Data))
	require.NoError(t, err)
	assert.Contains(t, r.Text, "Card 1234 5678")

	// Unavailable coursework ends the flow with an explanation.
	f.machine.Start(buyer)
	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuy))
	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuyCoursework))
	r, err = f.machine.Handle(ctx, buyer, yearPick(ActionPickCwYear, 2))
	require.NoError(t, err)
	btn = tokenButton(t, r, "Algorithms")
	assert.True(t, strings.HasSuffix(btn.Label, "❌"))
	r, err = f.machine.Handle(ctx, buyer, tokenPress(btn.Data))
	require.NoError(t, err)
	assert.Equal(t, msgCwMissing, r.Text)
}

func TestAboutEndsFlow(t *testing.T) {
	f := newFixture(t)
	f.machine.Start(buyer)
	r, err := f.machine.Handle(context.Background(), buyer, menu(ActionAbout))
	require.NoError(t, err)
	assert.Equal(t, "About us text.", r.Text)
	assert.Equal(t, session.StateIdle, f.sessions.Get(buyer.ID).State)
}

func TestEmptyCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.machine.Start(buyer)

	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuy))
	r, err := f.machine.Handle(ctx, buyer, menu(ActionBuyNotes))
	require.NoError(t, err)
	assert.Equal(t, msgNoCourses, r.Text)
	assert.Equal(t, session.StateIdle, f.sessions.Get(buyer.ID).State)
}

func TestBackNavigation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedCourse(t, 2, "Calculus", "calc.pdf")
	f.machine.Start(buyer)

	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuy))
	_, _ = f.machine.Handle(ctx, buyer, menu(ActionBuyNotes))
	r, err := f.machine.Handle(ctx, buyer, yearPick(ActionPickCourseBuy, 2))
	require.NoError(t, err)
	require.Equal(t, msgChooseSubject, r.Text)

	r, err = f.machine.Handle(ctx, buyer, menu(ActionBackCourseBuy))
	require.NoError(t, err)
	assert.Equal(t, msgChooseCourse, r.Text)
	assert.Equal(t, session.StateChoosingCourse, f.sessions.Get(buyer.ID).State)

	r, err = f.machine.Handle(ctx, buyer, menu(ActionBackMain))
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", r.Text)
	assert.Equal(t, session.StateChoosingAction, f.sessions.Get(buyer.ID).State)
}

func TestCancelFromEveryState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, state := range session.All() {
		f.sessions.Update(buyer.ID, func(s *session.Session) { s.State = state })

		r, err := f.machine.Handle(ctx, buyer, Event{Kind: KindCancel, Action: ActionCancel})
		require.NoError(t, err, "state %s", state)
		assert.Equal(t, msgCancelled, r.Text, "state %s", state)
		assert.Equal(t, session.StateIdle, f.sessions.Get(buyer.ID).State, "state %s", state)
	}
}

// Every state must produce a renderable reply for every event kind, and
// the session must land in a defined state.
func TestTransitionTotality(t *testing.T) {
	events := []Event{
		menu(ActionBuy),
		menu(Action("nonsense")),
		yearPick(ActionPickCourseBuy, 2),
		tokenPress("deadbeef"),
		textEvent("hello"),
		docEvent("x.pdf", []byte("%PDF")),
		{Kind: KindCancel, Action: ActionCancel},
	}
	valid := make(map[session.State]struct{})
	for _, s := range session.All() {
		valid[s] = struct{}{}
	}

	for _, state := range session.All() {
		for i, ev := range events {
			f := newFixture(t)
			f.seedCourse(t, 2, "Calculus", "calc.pdf")
			f.sessions.Update(buyer.ID, func(s *session.Session) { s.State = state })

			r, err := f.machine.Handle(context.Background(), buyer, ev)
			require.NoError(t, err, "state %s event %d", state, i)
			assert.NotEmpty(t, r.Text, "state %s event %d must yield a reply", state, i)

			_, ok := valid[f.sessions.Get(buyer.ID).State]
			assert.True(t, ok, "state %s event %d left an undefined state", state, i)
		}
	}
}

// A user who went idle (or never talked to the bot) gets a fresh start on
// any interaction rather than an error.
func TestIdleUserRestarts(t *testing.T) {
	f := newFixture(t)
	r, err := f.machine.Handle(context.Background(), buyer, textEvent("hello?"))
	require.NoError(t, err)
	assert.Equal(t, "Welcome!", r.Text)
	assert.Equal(t, session.StateChoosingAction, f.sessions.Get(buyer.ID).State)
}
