package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/DemidSergeev/notes-bot/core/logger"
	"github.com/DemidSergeev/notes-bot/internal/apperr"
	"github.com/DemidSergeev/notes-bot/internal/correlation"
	"github.com/DemidSergeev/notes-bot/internal/domain"
	"github.com/DemidSergeev/notes-bot/internal/service"
	"github.com/DemidSergeev/notes-bot/internal/session"
	"github.com/DemidSergeev/notes-bot/internal/storage"
)

// Notifier delivers out-of-band notifications to the administrator.
type Notifier interface {
	NotifyAdmin(ctx context.Context, text string)
}

// NopNotifier drops notifications; used when no admin is configured.
type NopNotifier struct{}

// NotifyAdmin implements Notifier.
func (NopNotifier) NotifyAdmin(context.Context, string) {}

// Config carries the market settings the machine renders into replies.
type Config struct {
	PriceRUB       int
	PaymentDetails string
	AboutText      string
}

// Machine validates events against the current session state, runs the
// workflow services, and computes the next state plus the outbound reply.
type Machine struct {
	sessions *session.Manager
	tokens   *correlation.Store
	catalog  storage.CatalogStore
	buy      *service.BuyNotes
	sell     *service.Sell
	start    *service.StartInteraction
	notifier Notifier
	cfg      Config
}

// NewMachine wires the conversation machine.
func NewMachine(
	sessions *session.Manager,
	tokens *correlation.Store,
	catalog storage.CatalogStore,
	buy *service.BuyNotes,
	sell *service.Sell,
	start *service.StartInteraction,
	notifier Notifier,
	cfg Config,
) *Machine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Machine{
		sessions: sessions,
		tokens:   tokens,
		catalog:  catalog,
		buy:      buy,
		sell:     sell,
		start:    start,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Reply texts. The machine never leaves a user without a response.
const (
	msgChooseType      = "What would you like to buy?"
	msgChooseCourse    = "Choose a course:"
	msgChooseCourseSel = "Choose the course you want to sell notes for:"
	msgChooseCwCourse  = "Choose a course for coursework:"
	msgChooseSubject   = "Choose a subject:\n(✅ — notes available, ❌ — none yet)"
	msgChooseCw        = "Choose a coursework:"
	msgNoCourses       = "The catalog is empty for now. Please check back later."
	msgNoSubjects      = "There are no subjects in this course yet."
	msgNoCoursework    = "No coursework has been added yet."
	msgNoteMissing     = "There are no notes for this subject yet."
	msgCwMissing       = "This coursework has no file yet."
	msgStaleButton     = "This button is stale — please repeat the action."
	msgSellPrompt      = "Send the notes PDF for %s — %s (.pdf only). After the file, send your payout details as a message."
	msgPDFOnly         = "Please send the file in PDF format."
	msgAwaitDocument   = "I'm waiting for a PDF document. Send the file, or /cancel to abort."
	msgAwaitPayDetails = "Please send your payout details as a text message."
	msgFileQueued      = "File stored for review. Now please send a message with your payout details."
	msgSubmitted       = "Thank you — your file awaits manual review. The administrator has been notified."
	msgCancelled       = "Operation cancelled."
	msgLostTrack       = "I lost track of this conversation. Please start over with /start."
	msgFailure         = "Something went wrong on our side. Please try again later."
)

// Start begins a fresh conversation: welcome message plus the fixed
// top-level actions, session at choosing_action.
func (m *Machine) Start(user User) Reply {
	m.sessions.Update(user.ID, func(s *session.Session) {
		s.State = session.StateChoosingAction
		s.SellYear = 0
		s.SellSubjectID = uuid.Nil
		s.SellSubjectName = ""
		s.UploadedFile = ""
	})
	data := m.start.GetStartData()
	buttons := make([]Button, 0, len(data.Actions))
	for _, action := range data.Actions {
		switch action {
		case domain.ActionBuy:
			buttons = append(buttons, Button{Label: "Buy", Action: ActionBuy})
		case domain.ActionSell:
			buttons = append(buttons, Button{Label: "Sell", Action: ActionSell})
		case domain.ActionAbout:
			buttons = append(buttons, Button{Label: "About us", Action: ActionAbout})
		}
	}
	return Reply{Text: data.Message, Buttons: buttons}
}

// Cancel aborts the current flow from any state and clears scratch data.
func (m *Machine) Cancel(user User) Reply {
	m.sessions.Clear(user.ID)
	return Reply{Text: msgCancelled}
}

// Handle processes one inbound event. The returned reply is always
// renderable; the returned error is for logging only and never leaves the
// session in an undefined state.
func (m *Machine) Handle(ctx context.Context, user User, ev Event) (Reply, error) {
	if ev.Kind == KindCancel || ev.Action == ActionCancel {
		return m.Cancel(user), nil
	}

	state := m.sessions.Get(user.ID).State
	logger.Debug(ctx, "flow", "event",
		slog.String("state", string(state)),
		slog.Int("kind", int(ev.Kind)),
		slog.String("action", string(ev.Action)),
	)

	switch state {
	case session.StateIdle:
		// A finished or brand-new session starts fresh.
		return m.Start(user), nil
	case session.StateChoosingAction:
		return m.handleChoosingAction(ctx, user, ev)
	case session.StateChoosingType:
		return m.handleChoosingType(ctx, user, ev)
	case session.StateChoosingCourse:
		return m.handleChoosingCourse(ctx, user, ev)
	case session.StateChoosingSubj:
		return m.handleChoosingSubject(ctx, user, ev)
	case session.StateSellUpload:
		return m.handleSellUpload(ctx, user, ev)
	case session.StateSellPayDetails:
		return m.handleSellPayDetails(ctx, user, ev)
	default:
		return m.lostTrack(user), nil
	}
}

func (m *Machine) handleChoosingAction(ctx context.Context, user User, ev Event) (Reply, error) {
	if ev.Kind != KindMenu {
		return m.lostTrack(user), nil
	}
	switch ev.Action {
	case ActionBuy:
		m.sessions.SetState(user.ID, session.StateChoosingType)
		return typeMenu(), nil
	case ActionSell:
		return m.courseMenu(ctx, user, PurposeSell)
	case ActionAbout:
		m.sessions.Clear(user.ID)
		return Reply{Text: m.cfg.AboutText}, nil
	case ActionBackMain:
		return m.Start(user), nil
	default:
		return m.lostTrack(user), nil
	}
}

func (m *Machine) handleChoosingType(ctx context.Context, user User, ev Event) (Reply, error) {
	if ev.Kind != KindMenu {
		return m.lostTrack(user), nil
	}
	switch ev.Action {
	case ActionBuyNotes:
		return m.courseMenu(ctx, user, PurposeBuy)
	case ActionBuyCoursework:
		return m.courseworkYearMenu(ctx, user)
	case ActionBackMain:
		return m.Start(user), nil
	default:
		return m.lostTrack(user), nil
	}
}

func (m *Machine) handleChoosingCourse(ctx context.Context, user User, ev Event) (Reply, error) {
	if ev.Kind != KindMenu {
		return m.lostTrack(user), nil
	}
	switch ev.Action {
	case ActionPickCourseBuy:
		return m.subjectMenu(ctx, user, domain.CourseYear(ev.Year), PurposeBuy)
	case ActionPickCourseSell:
		return m.subjectMenu(ctx, user, domain.CourseYear(ev.Year), PurposeSell)
	case ActionPickCwYear:
		return m.courseworkMenu(ctx, user, domain.CourseYear(ev.Year))
	case ActionBackMain:
		return m.Start(user), nil
	case ActionBackType:
		m.sessions.SetState(user.ID, session.StateChoosingType)
		return typeMenu(), nil
	default:
		return m.lostTrack(user), nil
	}
}

func (m *Machine) handleChoosingSubject(ctx context.Context, user User, ev Event) (Reply, error) {
	if ev.Kind == KindToken || ev.Action == ActionPick {
		return m.handleTokenPress(ctx, user, ev.Token)
	}
	if ev.Kind != KindMenu {
		return m.lostTrack(user), nil
	}
	switch ev.Action {
	case ActionBackCourseBuy:
		return m.courseMenu(ctx, user, PurposeBuy)
	case ActionBackCourseSell:
		return m.courseMenu(ctx, user, PurposeSell)
	case ActionBackCwYears:
		return m.courseworkYearMenu(ctx, user)
	case ActionBackMain:
		return m.Start(user), nil
	default:
		return m.lostTrack(user), nil
	}
}

func (m *Machine) handleTokenPress(ctx context.Context, user User, token string) (Reply, error) {
	intent, ok := m.tokens.Consume(token)
	if !ok {
		m.sessions.Clear(user.ID)
		return Reply{Text: msgStaleButton}, nil
	}

	switch intent.Kind {
	case correlation.KindSubject:
		if intent.Purpose == correlation.PurposeSell {
			return m.beginSellUpload(ctx, user, intent)
		}
		return m.buyNote(ctx, user, intent)
	case correlation.KindCoursework:
		return m.buyCoursework(ctx, user, intent)
	default:
		return m.lostTrack(user), nil
	}
}

func (m *Machine) buyNote(ctx context.Context, user User, intent correlation.Intent) (Reply, error) {
	subject, err := m.catalog.GetSubjectByID(ctx, intent.SubjectID)
	if err != nil {
		return m.failure(ctx, user, "load subject", err)
	}
	note, ok := subject.FirstNote()
	if !ok {
		m.sessions.Clear(user.ID)
		return Reply{Text: msgNoteMissing}, nil
	}

	receipt, err := m.buy.CreatePurchaseReceipt(ctx, user.ID, user.Name, "", m.cfg.PriceRUB, note.ID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			m.sessions.Clear(user.ID)
			return Reply{Text: msgNoteMissing}, nil
		}
		return m.failure(ctx, user, "create receipt", err)
	}

	m.notifier.NotifyAdmin(ctx, fmt.Sprintf(
		"New purchase request\nBuyer: %s (%d)\nNote: %s\nFile: %s\nPrice: %d RUB",
		user.Name, user.ID, receipt.NoteTitle, receipt.NoteFilename, receipt.PriceRUB,
	))

	m.sessions.Clear(user.ID)
	return Reply{Text: fmt.Sprintf(
		"To buy the notes for %s:\n%s\n\nPlease pay and wait for verification (up to 3 hours).",
		subject.Name, m.cfg.PaymentDetails,
	)}, nil
}

func (m *Machine) buyCoursework(ctx context.Context, user User, intent correlation.Intent) (Reply, error) {
	cw, err := m.catalog.GetCourseworkByID(ctx, intent.CourseworkID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			m.sessions.Clear(user.ID)
			return Reply{Text: msgCwMissing}, nil
		}
		return m.failure(ctx, user, "load coursework", err)
	}
	m.sessions.Clear(user.ID)
	if !cw.Available() {
		return Reply{Text: msgCwMissing}, nil
	}
	return Reply{Text: fmt.Sprintf(
		"The coursework is available. Payment details:\n%s\nVerification takes up to 3 hours.",
		m.cfg.PaymentDetails,
	)}, nil
}

func (m *Machine) beginSellUpload(ctx context.Context, user User, intent correlation.Intent) (Reply, error) {
	subject, err := m.catalog.GetSubjectByID(ctx, intent.SubjectID)
	if err != nil {
		return m.failure(ctx, user, "load subject", err)
	}
	m.sessions.Update(user.ID, func(s *session.Session) {
		s.State = session.StateSellUpload
		s.SellYear = domain.CourseYear(intent.Year)
		s.SellSubjectID = subject.ID
		s.SellSubjectName = subject.Name
		s.UploadedFile = ""
	})
	return Reply{Text: fmt.Sprintf(msgSellPrompt, yearLabel(domain.CourseYear(intent.Year)), subject.Name)}, nil
}

func (m *Machine) handleSellUpload(ctx context.Context, user User, ev Event) (Reply, error) {
	sess := m.sessions.Get(user.ID)
	if sess.SellYear == 0 || sess.SellSubjectName == "" {
		return m.lostTrack(user), nil
	}
	if ev.Kind != KindDocument {
		// Re-prompt without transitioning.
		return Reply{Text: msgAwaitDocument}, nil
	}

	ref, err := m.sell.StorePendingFile(ctx, sess.SellYear, sess.SellSubjectName, user.ID, ev.Document.Name, ev.Document.Data)
	if err != nil {
		if errors.Is(err, apperr.ErrValidationFailed) {
			return Reply{Text: msgPDFOnly}, nil
		}
		return m.failure(ctx, user, "store upload", err)
	}

	m.sessions.Update(user.ID, func(s *session.Session) {
		s.State = session.StateSellPayDetails
		s.UploadedFile = ref
	})
	return Reply{Text: msgFileQueued}, nil
}

func (m *Machine) handleSellPayDetails(ctx context.Context, user User, ev Event) (Reply, error) {
	sess := m.sessions.Get(user.ID)
	if sess.UploadedFile == "" {
		return m.lostTrack(user), nil
	}
	if ev.Kind != KindText || ev.Text == "" {
		return Reply{Text: msgAwaitPayDetails}, nil
	}

	sub, err := m.sell.SubmitPayDetails(ctx, user.ID, user.Name, sess.SellYear, sess.SellSubjectName, sess.UploadedFile, ev.Text)
	if err != nil {
		return m.failure(ctx, user, "submit pay details", err)
	}

	m.notifier.NotifyAdmin(ctx, fmt.Sprintf(
		"New file for review: %s\nSeller: %s (%d)\nCourse: %s, subject: %s",
		sub.Filename, user.Name, user.ID, yearLabel(sub.Year), sub.SubjectName,
	))

	m.sessions.Clear(user.ID)
	return Reply{Text: msgSubmitted}, nil
}

// Purpose aliases keep call sites short.
const (
	PurposeBuy  = correlation.PurposeBuy
	PurposeSell = correlation.PurposeSell
)

func typeMenu() Reply {
	return Reply{
		Text: msgChooseType,
		Buttons: []Button{
			{Label: "Notes", Action: ActionBuyNotes},
			{Label: "Coursework", Action: ActionBuyCoursework},
			{Label: "◀️ Back", Action: ActionBackMain},
		},
	}
}

func (m *Machine) courseMenu(ctx context.Context, user User, purpose correlation.Purpose) (Reply, error) {
	courses, err := m.buy.GetCourses(ctx)
	if err != nil {
		return m.failure(ctx, user, "list courses", err)
	}
	if len(courses) == 0 {
		m.sessions.Clear(user.ID)
		return Reply{Text: msgNoCourses}, nil
	}

	pick := ActionPickCourseBuy
	text := msgChooseCourse
	if purpose == PurposeSell {
		pick = ActionPickCourseSell
		text = msgChooseCourseSel
	}

	buttons := make([]Button, 0, len(courses)+1)
	for _, course := range courses {
		buttons = append(buttons, Button{
			Label:  yearLabel(course.Year),
			Action: pick,
			Data:   strconv.Itoa(int(course.Year)),
		})
	}
	buttons = append(buttons, Button{Label: "◀️ Back", Action: ActionBackMain})

	m.sessions.SetState(user.ID, session.StateChoosingCourse)
	return Reply{Text: text, Buttons: buttons}, nil
}

func (m *Machine) courseworkYearMenu(ctx context.Context, user User) (Reply, error) {
	years, err := m.catalog.ListCourseworkYears(ctx)
	if err != nil {
		return m.failure(ctx, user, "list coursework years", err)
	}
	if len(years) == 0 {
		m.sessions.Clear(user.ID)
		return Reply{Text: msgNoCoursework}, nil
	}

	buttons := make([]Button, 0, len(years)+1)
	for _, year := range years {
		buttons = append(buttons, Button{
			Label:  yearLabel(year),
			Action: ActionPickCwYear,
			Data:   strconv.Itoa(int(year)),
		})
	}
	buttons = append(buttons, Button{Label: "◀️ Back", Action: ActionBackType})

	m.sessions.SetState(user.ID, session.StateChoosingCourse)
	return Reply{Text: msgChooseCwCourse, Buttons: buttons}, nil
}

// subjectMenu issues a fresh batch of correlation tokens, one per subject
// of the chosen course, and advances to choosing_subject.
func (m *Machine) subjectMenu(ctx context.Context, user User, year domain.CourseYear, purpose correlation.Purpose) (Reply, error) {
	course, err := m.catalog.GetCourseByYear(ctx, year)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			m.sessions.Clear(user.ID)
			return Reply{Text: msgNoSubjects}, nil
		}
		return m.failure(ctx, user, "load course", err)
	}
	if len(course.Subjects) == 0 {
		m.sessions.Clear(user.ID)
		return Reply{Text: msgNoSubjects}, nil
	}

	buttons := make([]Button, 0, len(course.Subjects)+1)
	for _, subject := range course.Subjects {
		mark := "❌"
		if subject.HasNote() {
			mark = "✅"
		}
		token := m.tokens.Issue(correlation.Intent{
			Kind:      correlation.KindSubject,
			Year:      int(year),
			SubjectID: subject.ID,
			Purpose:   purpose,
		})
		buttons = append(buttons, Button{
			Label:  mark + " " + subject.Name,
			Action: ActionPick,
			Data:   token,
		})
	}

	back := ActionBackCourseBuy
	if purpose == PurposeSell {
		back = ActionBackCourseSell
	}
	buttons = append(buttons, Button{Label: "◀️ Back", Action: back})

	m.sessions.SetState(user.ID, session.StateChoosingSubj)
	return Reply{Text: msgChooseSubject, Buttons: buttons}, nil
}

func (m *Machine) courseworkMenu(ctx context.Context, user User, year domain.CourseYear) (Reply, error) {
	works, err := m.catalog.ListCourseworkByYear(ctx, year)
	if err != nil {
		return m.failure(ctx, user, "list coursework", err)
	}
	if len(works) == 0 {
		m.sessions.Clear(user.ID)
		return Reply{Text: msgNoCoursework}, nil
	}

	buttons := make([]Button, 0, len(works)+1)
	for _, cw := range works {
		mark := " ❌"
		if cw.Available() {
			mark = " ✅"
		}
		token := m.tokens.Issue(correlation.Intent{
			Kind:         correlation.KindCoursework,
			Year:         int(year),
			CourseworkID: cw.ID,
			Purpose:      PurposeBuy,
		})
		buttons = append(buttons, Button{
			Label:  cw.Title + mark,
			Action: ActionPick,
			Data:   token,
		})
	}
	buttons = append(buttons, Button{Label: "◀️ Back", Action: ActionBackCwYears})

	m.sessions.SetState(user.ID, session.StateChoosingSubj)
	return Reply{Text: msgChooseCw, Buttons: buttons}, nil
}

// lostTrack handles a session missing data the current state requires,
// and any event the state has no edge for: guide the user and end.
func (m *Machine) lostTrack(user User) Reply {
	m.sessions.Clear(user.ID)
	return Reply{Text: msgLostTrack}
}

// failure terminates the flow on a persistence error rather than leaving
// a half-updated session behind.
func (m *Machine) failure(ctx context.Context, user User, op string, err error) (Reply, error) {
	logger.Error(ctx, "flow", "op.failed",
		slog.String("op", op),
		slog.String("err", err.Error()),
	)
	m.sessions.Clear(user.ID)
	return Reply{Text: msgFailure}, fmt.Errorf("%s: %w", op, err)
}

func yearLabel(year domain.CourseYear) string {
	return "Year " + strconv.Itoa(int(year))
}
