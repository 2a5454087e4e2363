// Package bot is the conversational front end: user registration, test
// enrollment and answer submission, and the admin authoring and grading
// panel. It is transport-agnostic; an Update goes in and the replies to send
// back to the same user come out.
package bot

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-testbot/internal/eligibility"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
	"github.com/mind-engage/mindengage-testbot/internal/grading"
	"github.com/mind-engage/mindengage-testbot/internal/metrics"
	"github.com/mind-engage/mindengage-testbot/internal/rbac"
	"github.com/mind-engage/mindengage-testbot/internal/session"
)

// Update is one inbound event from the messaging platform. Exactly one of
// Text and Callback is normally set.
type Update struct {
	UserID   string `json:"user_id"`
	Handle   string `json:"handle,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Text     string `json:"text,omitempty"`
	Callback string `json:"callback,omitempty"`
}

// Button is an inline button carrying either callback data or a URL.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Reply struct {
	Text     string     `json:"text"`
	Inline   [][]Button `json:"inline,omitempty"`
	Keyboard [][]string `json:"keyboard,omitempty"` // reply keyboard rows
	Photo    []byte     `json:"photo,omitempty"`    // PNG
}

// Grader runs the admin-triggered grading passes.
type Grader interface {
	GradeRaw(ctx context.Context, testID string) (grading.RawReport, error)
	ScorePsychometric(ctx context.Context, testID string) (grading.PsychometricReport, error)
}

type Config struct {
	ChannelURL   string // subscribe link shown to gated users
	AdminChannel string // recipient of new-user notices; empty disables them
	Location     *time.Location
}

type Bot struct {
	store    exam.Store
	sessions session.Store
	gate     *eligibility.Gate
	admins   rbac.AdminSet
	grader   Grader
	sender   grading.Sender
	cfg      Config
	now      func() time.Time
}

type Option func(*Bot)

func WithGrader(g Grader) Option         { return func(b *Bot) { b.grader = g } }
func WithSender(s grading.Sender) Option { return func(b *Bot) { b.sender = s } }
func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

func New(store exam.Store, sessions session.Store, gate *eligibility.Gate, admins rbac.AdminSet, cfg Config, opts ...Option) *Bot {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if gate == nil {
		gate = eligibility.NewGate(nil)
	}
	b := &Bot{
		store:    store,
		sessions: sessions,
		gate:     gate,
		admins:   admins,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handle processes one update as a single step of the conversation.
func (b *Bot) Handle(ctx context.Context, u Update) []Reply {
	if u.UserID == "" {
		return nil
	}
	switch {
	case u.Callback != "":
		metrics.Updates.WithLabelValues("callback").Inc()
		return b.handleCallback(ctx, u)
	case strings.HasPrefix(strings.TrimSpace(u.Text), "/"):
		metrics.Updates.WithLabelValues("command").Inc()
		return b.handleCommand(ctx, u)
	default:
		metrics.Updates.WithLabelValues("text").Inc()
		return b.handleText(ctx, u)
	}
}

func (b *Bot) handleCommand(ctx context.Context, u Update) []Reply {
	cmd, _, _ := strings.Cut(strings.TrimSpace(u.Text), " ")
	// "/start@botname" style suffixes
	cmd, _, _ = strings.Cut(cmd, "@")
	switch cmd {
	case "/start":
		return b.start(ctx, u)
	case "/cancel":
		if err := b.sessions.Delete(ctx, u.UserID); err != nil {
			return b.fail("cancel", err)
		}
		return text(msgCancelled)
	case "/admin":
		return b.adminPanel(u)
	}
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, u Update) []Reply {
	data := u.Callback
	switch {
	case data == cbCheckSubscription:
		return b.recheck(ctx, u)
	case data == cbAdminAddTest:
		return b.adminOnly(u, func() []Reply { return b.adminAddTest(ctx, u) })
	case data == cbAdminCheckAnswers:
		return b.adminOnly(u, func() []Reply { return b.adminListTests(ctx, cbCheckPrefix, msgPickCheck) })
	case data == cbAdminIRT:
		return b.adminOnly(u, func() []Reply { return b.adminListTests(ctx, cbIRTPrefix, msgPickIRT) })
	case data == cbAdminViewRegs:
		return b.adminOnly(u, func() []Reply { return b.adminViewRegistrations(ctx) })
	case strings.HasPrefix(data, cbCheckPrefix):
		return b.adminOnly(u, func() []Reply { return b.adminGradeRaw(ctx, strings.TrimPrefix(data, cbCheckPrefix)) })
	case strings.HasPrefix(data, cbIRTPrefix):
		return b.adminOnly(u, func() []Reply { return b.adminScoreIRT(ctx, strings.TrimPrefix(data, cbIRTPrefix)) })
	}
	return nil
}

func (b *Bot) handleText(ctx context.Context, u Update) []Reply {
	sess, err := session.Load(ctx, b.sessions, u.UserID)
	if err != nil {
		return b.fail("load session", err)
	}
	if sess.Step.Admin() {
		if !b.admins.Contains(u.UserID) {
			_ = b.sessions.Delete(ctx, u.UserID)
			return text(msgNotAllowed)
		}
		return b.adminStep(ctx, u, sess)
	}
	switch sess.Step {
	case session.StepAwaitingName:
		return b.takeName(ctx, u, sess)
	case session.StepAwaitingSurname:
		return b.takeSurname(ctx, u, sess)
	}
	return b.continuation(ctx, u, sess)
}

func (b *Bot) fail(op string, err error) []Reply {
	log.Printf("bot: %s: %v", op, err)
	return text(msgTryAgain)
}

func (b *Bot) timestamp() string { return exam.FormatTime(b.now().In(b.cfg.Location)) }

func text(msgs ...string) []Reply {
	out := make([]Reply, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Reply{Text: m})
	}
	return out
}
