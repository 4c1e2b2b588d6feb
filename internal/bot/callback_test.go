package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/DemidSergeev/notes-bot/internal/flow"
)

func TestEventFromCallback(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		payload string
		want    flow.Event
		ok      bool
	}{
		{
			name: "cancel",
			key:  "cancel",
			want: flow.Event{Kind: flow.KindCancel, Action: flow.ActionCancel},
			ok:   true,
		},
		{
			name:    "token pick",
			key:     "pick",
			payload: "deadbeef",
			want:    flow.Event{Kind: flow.KindToken, Action: flow.ActionPick, Token: "deadbeef"},
			ok:      true,
		},
		{
			name:    "course pick with year",
			key:     "course_buy",
			payload: "3",
			want:    flow.Event{Kind: flow.KindMenu, Action: flow.ActionPickCourseBuy, Year: 3},
			ok:      true,
		},
		{
			name:    "course pick tolerates padded payload",
			key:     "course_sell",
			payload: " 2 ",
			want:    flow.Event{Kind: flow.KindMenu, Action: flow.ActionPickCourseSell, Year: 2},
			ok:      true,
		},
		{
			name:    "course pick with garbage payload",
			key:     "course_cw",
			payload: "three",
			ok:      false,
		},
		{
			name: "static menu action",
			key:  "buy_notes",
			want: flow.Event{Kind: flow.KindMenu, Action: flow.ActionBuyNotes},
			ok:   true,
		},
		{
			name: "back edge",
			key:  "back_course_sell",
			want: flow.Event{Kind: flow.KindMenu, Action: flow.ActionBackCourseSell},
			ok:   true,
		},
		{
			name: "unknown key",
			key:  "self_destruct",
			ok:   false,
		},
		{
			name: "empty key",
			key:  "",
			ok:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, ok := eventFromCallback(tc.key, tc.payload)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, ev)
			}
		})
	}
}

func TestParseCallbackData(t *testing.T) {
	key, payload := parseCallbackData(nil)
	assert.Empty(t, key)
	assert.Empty(t, payload)

	// Unique takes precedence when telebot already split the data.
	key, payload = parseCallbackData(&tele.Callback{Unique: "pick", Data: "deadbeef"})
	assert.Equal(t, "pick", key)
	assert.Equal(t, "deadbeef", payload)

	// Raw wire form: "\f" prefix, "|" separator.
	key, payload = parseCallbackData(&tele.Callback{Data: "\fcourse_buy|2"})
	assert.Equal(t, "course_buy", key)
	assert.Equal(t, "2", payload)

	key, payload = parseCallbackData(&tele.Callback{Data: "\fbuy"})
	assert.Equal(t, "buy", key)
	assert.Empty(t, payload)
}
