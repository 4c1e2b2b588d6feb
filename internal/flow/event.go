// Package flow implements the per-user conversation machine driving the
// buy/sell dialogue. Inbound updates are mapped onto a closed set of
// event kinds, matched exhaustively against the current session state;
// every (state, event) pair resolves to a reply and a valid next state.
package flow

// Kind is the closed enumeration of inbound event kinds.
type Kind int

const (
	// KindMenu is a tap on a fixed menu button.
	KindMenu Kind = iota
	// KindToken is a tap on a correlation-token button.
	KindToken
	// KindDocument is a file upload.
	KindDocument
	// KindText is a free-form text message.
	KindText
	// KindCancel aborts the current flow from any state.
	KindCancel
)

// Action identifies a fixed menu button.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionAbout Action = "about"

	ActionBuyNotes      Action = "buy_notes"
	ActionBuyCoursework Action = "buy_coursework"

	// Course picks carry the chosen year in Event.Year.
	ActionPickCourseBuy  Action = "course_buy"
	ActionPickCourseSell Action = "course_sell"
	ActionPickCwYear     Action = "course_cw"

	// ActionPick carries a correlation token in Event.Token.
	ActionPick Action = "pick"

	// Back edges, each re-rendering the prior menu.
	ActionBackMain       Action = "back_main"
	ActionBackType       Action = "back_type"
	ActionBackCourseBuy  Action = "back_course_buy"
	ActionBackCourseSell Action = "back_course_sell"
	ActionBackCwYears    Action = "back_cw_years"

	ActionCancel Action = "cancel"
)

// Document is an uploaded file with its declared name.
type Document struct {
	Name string
	Data []byte
}

// Event is one inbound user interaction.
type Event struct {
	Kind     Kind
	Action   Action
	Year     int
	Token    string
	Document Document
	Text     string
}

// User identifies the sender of an event.
type User struct {
	ID   int64
	Name string
}

// Button is an outbound inline button: a label plus the opaque action and
// payload the transport embeds in it.
type Button struct {
	Label  string
	Action Action
	Data   string
}

// Reply is the outbound message computed for an event.
type Reply struct {
	Text    string
	Buttons []Button
}
