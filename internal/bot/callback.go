package bot

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/DemidSergeev/notes-bot/core/telegram/helpers"
	"github.com/DemidSergeev/notes-bot/internal/flow"
)

// menuActions is the closed set of static menu callback keys.
var menuActions = map[flow.Action]struct{}{
	flow.ActionBuy:            {},
	flow.ActionSell:           {},
	flow.ActionAbout:          {},
	flow.ActionBuyNotes:       {},
	flow.ActionBuyCoursework:  {},
	flow.ActionBackMain:       {},
	flow.ActionBackType:       {},
	flow.ActionBackCourseBuy:  {},
	flow.ActionBackCourseSell: {},
	flow.ActionBackCwYears:    {},
}

// yearActions carry the chosen year in their payload.
var yearActions = map[flow.Action]struct{}{
	flow.ActionPickCourseBuy:  {},
	flow.ActionPickCourseSell: {},
	flow.ActionPickCwYear:     {},
}

// eventFromCallback maps a parsed callback (key, payload) onto a flow
// event. The second return is false for keys the bot does not know.
func eventFromCallback(key, payload string) (flow.Event, bool) {
	action := flow.Action(key)
	switch {
	case action == flow.ActionCancel:
		return flow.Event{Kind: flow.KindCancel, Action: action}, true
	case action == flow.ActionPick:
		return flow.Event{Kind: flow.KindToken, Action: action, Token: payload}, true
	default:
	}
	if _, ok := yearActions[action]; ok {
		year, err := strconv.Atoi(strings.TrimSpace(payload))
		if err != nil {
			return flow.Event{}, false
		}
		return flow.Event{Kind: flow.KindMenu, Action: action, Year: year}, true
	}
	if _, ok := menuActions[action]; ok {
		return flow.Event{Kind: flow.KindMenu, Action: action}, true
	}
	return flow.Event{}, false
}

// parseCallbackData splits raw callback data into key and payload.
// Telebot prefixes data-carrying callbacks with "\f".
func parseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.SplitN(raw, "|", 2)
	key := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return key, payload
}

// onCallback handles every inline button press: acknowledge the press,
// map it onto a flow event, and render the machine's reply in place.
func (a *App) onCallback(c tele.Context) error {
	cb := c.Callback()
	// Stop the client spinner; a stale callback id is not an error.
	_ = c.Respond(&tele.CallbackResponse{})

	key, payload := parseCallbackData(cb)
	ev, ok := eventFromCallback(key, payload)
	if !ok {
		return tghelpers.SendText(c, "Unsupported action. Use /start to begin.")
	}

	ctx := tghelpers.WithHandler(c, "callback."+key)
	// Machine failures are logged inside Handle and surface to the user
	// through the reply text, so only send errors propagate.
	reply, _ := a.machine.Handle(ctx, flowUser(c), ev)
	return editReply(c, reply)
}
