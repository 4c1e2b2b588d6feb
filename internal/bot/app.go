// Package bot wires the conversation machine and admin workflows onto
// the Telegram transport.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/DemidSergeev/notes-bot/core/buildinfo"
	coreconfig "github.com/DemidSergeev/notes-bot/core/config"
	"github.com/DemidSergeev/notes-bot/core/logger"
	"github.com/DemidSergeev/notes-bot/core/telegram"
	"github.com/DemidSergeev/notes-bot/core/telegram/commands"
	tghelpers "github.com/DemidSergeev/notes-bot/core/telegram/helpers"
	"github.com/DemidSergeev/notes-bot/internal/correlation"
	"github.com/DemidSergeev/notes-bot/internal/domain"
	"github.com/DemidSergeev/notes-bot/internal/flow"
	"github.com/DemidSergeev/notes-bot/internal/service"
	"github.com/DemidSergeev/notes-bot/internal/session"
)

// Telegram caps bot file downloads at 20 MB.
const maxUploadBytes = 20 << 20

// App owns the transport-facing half of the bot.
type App struct {
	cfg      *coreconfig.Config
	machine  *flow.Machine
	admin    *service.Admin
	sessions *session.Manager
	tokens   *correlation.Store
	notifier *AdminNotifier
}

// New assembles the bot application.
func New(
	cfg *coreconfig.Config,
	machine *flow.Machine,
	admin *service.Admin,
	sessions *session.Manager,
	tokens *correlation.Store,
	notifier *AdminNotifier,
) *App {
	return &App{
		cfg:      cfg,
		machine:  machine,
		admin:    admin,
		sessions: sessions,
		tokens:   tokens,
		notifier: notifier,
	}
}

// Run starts the bot and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	reg := telegram.NewRegistry()
	a.registerCommands(reg)

	return telegram.RunTelegram(ctx, telegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: telegram.DefaultMiddlewares(a.cfg, nil),
		Routes: []telegram.Route{
			{Endpoint: tele.OnCallback, Handler: a.onCallback},
			{Endpoint: tele.OnDocument, Handler: a.onDocument},
			{Endpoint: tele.OnText, Handler: a.onText},
		},
		OnStart: func(ctx context.Context, rt telegram.Runtime) error {
			a.notifier.Bind(rt.Bot, rt.Dispatcher)
			logger.Info(ctx, "bot", "started",
				slog.String("version", buildinfo.Version),
				slog.String("commit", buildinfo.Commit),
			)
			return nil
		},
		OnStop: func(ctx context.Context, rt telegram.Runtime) error {
			a.tokens.Close()
			logger.Info(ctx, "bot", "stopped")
			return nil
		},
	})
}

func (a *App) registerCommands(reg *telegram.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.cmdStart,
		Description: "Show the main menu",
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.cmdCancel,
		Description: "Abort the current operation",
	})
	reg.RegisterCommand("/pending", commands.Command{
		Handler:     a.cmdPending,
		Description: "List submissions awaiting review",
		AdminOnly:   true,
		Aliases:     []string{"list_pending"},
	})
	reg.RegisterCommand("/approve", commands.Command{
		Handler:     a.cmdApprove,
		Description: "Approve a pending submission: /approve <id>",
		AdminOnly:   true,
		Aliases:     []string{"confirm"},
	})
	reg.RegisterCommand("/release", commands.Command{
		Handler:     a.cmdRelease,
		Description: "Fetch a sold file: /release <year> <subject>",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/set_welcome", commands.Command{
		Handler:     a.cmdSetWelcome,
		Description: "Replace the /start welcome message",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/version", commands.Command{
		Handler:     a.cmdVersion,
		Description: "Show build information",
		Hidden:      true,
	})
}

func (a *App) cmdStart(c tele.Context) error {
	tghelpers.WithHandler(c, "cmd.start")
	return sendReply(c, a.machine.Start(flowUser(c)))
}

func (a *App) cmdCancel(c tele.Context) error {
	tghelpers.WithHandler(c, "cmd.cancel")
	return sendReply(c, a.machine.Cancel(flowUser(c)))
}

func (a *App) cmdVersion(c tele.Context) error {
	text := fmt.Sprintf("%s (%s)", buildinfo.Version, buildinfo.Commit)
	if buildinfo.Date != "" {
		text += " built " + buildinfo.Date
	}
	return tghelpers.SendText(c, text)
}

func (a *App) cmdPending(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "cmd.pending")
	subs, err := a.admin.ListPending(ctx)
	if err != nil {
		logger.Error(ctx, "bot", "pending.list.fail", slog.String("err", err.Error()))
		return tghelpers.SendText(c, "Failed to list pending submissions.")
	}
	if len(subs) == 0 {
		return tghelpers.SendText(c, "No submissions are waiting for review.")
	}

	var b strings.Builder
	b.WriteString("Pending submissions:\n")
	for _, sub := range subs {
		fmt.Fprintf(&b, "\n%s\nYear %d — %s\nSeller: %s (%d)\nFile: %s\nPayout: %s\n",
			sub.ID, sub.Year, sub.SubjectName, sub.SellerName, sub.SellerID,
			sub.Filename, sub.PaymentDetails,
		)
	}
	return tghelpers.SendText(c, b.String())
}

func (a *App) cmdApprove(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "cmd.approve")
	arg := strings.TrimSpace(c.Message().Payload)
	if arg == "" {
		return tghelpers.SendText(c, "Usage: /approve <submission id>")
	}
	id, err := uuid.Parse(arg)
	if err != nil {
		return tghelpers.SendText(c, "Invalid submission id.")
	}

	note, err := a.admin.Approve(ctx, id)
	if err != nil {
		logger.Error(ctx, "bot", "approve.fail",
			slog.String("submission_id", id.String()),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Approval failed: "+err.Error())
	}
	return tghelpers.SendText(c, fmt.Sprintf("Approved. Note %q now serves file %s.", note.Title, note.Filename))
}

func (a *App) cmdRelease(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "cmd.release")
	fields := strings.Fields(c.Message().Payload)
	if len(fields) < 2 {
		return tghelpers.SendText(c, "Usage: /release <year> <subject>")
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return tghelpers.SendText(c, "Year must be a number from 1 to 6.")
	}
	subject := strings.Join(fields[1:], " ")

	path, name, err := a.admin.Release(ctx, domain.CourseYear(year), subject)
	if err != nil {
		logger.Error(ctx, "bot", "release.fail",
			slog.Int("year", year),
			slog.String("subject", subject),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Release failed: "+err.Error())
	}
	return tghelpers.SendDocument(c, path, name)
}

func (a *App) cmdSetWelcome(c tele.Context) error {
	ctx := tghelpers.WithHandler(c, "cmd.set_welcome")
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return tghelpers.SendText(c, "Usage: /set_welcome <new welcome text>")
	}
	if err := a.admin.SetWelcome(text); err != nil {
		logger.Error(ctx, "bot", "set_welcome.fail", slog.String("err", err.Error()))
		return tghelpers.SendText(c, "Failed to update the welcome message.")
	}
	return tghelpers.SendText(c, "Welcome message updated.")
}

// onDocument feeds uploads into the sell flow. Files outside an active
// conversation are ignored.
func (a *App) onDocument(c tele.Context) error {
	user := flowUser(c)
	if !a.sessions.InProgress(user.ID) {
		return nil
	}
	doc := c.Message().Document
	if doc == nil {
		return nil
	}

	ctx := tghelpers.WithHandler(c, "document")
	rc, err := c.Bot().File(&doc.File)
	if err != nil {
		logger.Error(ctx, "bot", "document.download.fail",
			slog.String("file", doc.FileName),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Could not download the file. Please try again.")
	}
	data, err := io.ReadAll(io.LimitReader(rc, maxUploadBytes))
	_ = rc.Close()
	if err != nil {
		logger.Error(ctx, "bot", "document.read.fail",
			slog.String("file", doc.FileName),
			slog.String("err", err.Error()),
		)
		return tghelpers.SendText(c, "Could not download the file. Please try again.")
	}

	ev := flow.Event{
		Kind:     flow.KindDocument,
		Document: flow.Document{Name: doc.FileName, Data: data},
	}
	reply, _ := a.machine.Handle(ctx, user, ev)
	return sendReply(c, reply)
}

// onText feeds free-form text into the machine when a conversation is in
// progress; otherwise it nudges the user towards /start.
func (a *App) onText(c tele.Context) error {
	user := flowUser(c)
	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		// Unknown command; registered ones never reach this route.
		return nil
	}
	ctx := tghelpers.WithHandler(c, "text")
	if !a.sessions.InProgress(user.ID) {
		return tghelpers.SendText(c, "Use /start to begin.")
	}
	reply, _ := a.machine.Handle(ctx, user, flow.Event{Kind: flow.KindText, Text: text})
	return sendReply(c, reply)
}
