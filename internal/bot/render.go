package bot

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/DemidSergeev/notes-bot/core/telegram/helpers"
	"github.com/DemidSergeev/notes-bot/core/telegram/keyboard"
	"github.com/DemidSergeev/notes-bot/internal/flow"
)

// markupFor converts flow buttons into an inline keyboard, one button per
// row, matching the menu layout users see.
func markupFor(buttons []flow.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	btns := make([]keyboard.InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, keyboard.InlineBtn{
			Text:   b.Label,
			Unique: string(b.Action),
			Data:   b.Data,
		})
	}
	return keyboard.InlineButtons(btns)
}

// sendReply delivers a flow reply as a new message.
func sendReply(c tele.Context, r flow.Reply) error {
	if m := markupFor(r.Buttons); m != nil {
		return tghelpers.SendText(c, r.Text, m)
	}
	return tghelpers.SendText(c, r.Text)
}

// editReply delivers a flow reply in place of the message the pressed
// button belongs to, falling back to a fresh message.
func editReply(c tele.Context, r flow.Reply) error {
	if m := markupFor(r.Buttons); m != nil {
		return tghelpers.EditOrSendText(c, r.Text, m)
	}
	return tghelpers.EditOrSendText(c, r.Text)
}

// flowUser projects the Telegram sender onto the flow identity.
func flowUser(c tele.Context) flow.User {
	u := c.Sender()
	if u == nil {
		return flow.User{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		name = "@" + u.Username
	}
	return flow.User{ID: u.ID, Name: name}
}
