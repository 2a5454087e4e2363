package bot

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/mind-engage/mindengage-testbot/internal/answers"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
	"github.com/mind-engage/mindengage-testbot/internal/notify"
	"github.com/mind-engage/mindengage-testbot/internal/session"
)

func (b *Bot) start(ctx context.Context, u Update) []Reply {
	// /start always begins a fresh conversation
	if err := b.sessions.Delete(ctx, u.UserID); err != nil {
		return b.fail("reset session", err)
	}
	if !b.gate.Allow(ctx, u.UserID) {
		return []Reply{b.gatingPrompt(msgNotSubscribed)}
	}
	return b.enter(ctx, u, false)
}

func (b *Bot) recheck(ctx context.Context, u Update) []Reply {
	if !b.gate.Allow(ctx, u.UserID) {
		return []Reply{b.gatingPrompt(msgStillNotSubbed)}
	}
	return b.enter(ctx, u, true)
}

// enter runs after the eligibility gate passed: known users get the menu,
// new users are asked for their name.
func (b *Bot) enter(ctx context.Context, u Update, announce bool) []Reply {
	_, err := b.store.GetUser(ctx, u.UserID)
	switch {
	case err == nil:
		menu := b.menu(ctx)
		if announce {
			return append(text(msgAlreadyRegd), menu)
		}
		return []Reply{menu}
	case !errors.Is(err, exam.ErrNotFound):
		return b.fail("get user", err)
	}

	b.notifyNewUser(ctx, u)
	if err := b.sessions.Put(ctx, session.Session{UserID: u.UserID, Step: session.StepAwaitingName}); err != nil {
		return b.fail("save session", err)
	}
	return text(msgAskName)
}

func (b *Bot) gatingPrompt(msg string) Reply {
	var rows [][]Button
	if b.cfg.ChannelURL != "" {
		rows = append(rows, []Button{{Text: "📢 Subscribe to the channel", URL: b.cfg.ChannelURL}})
	}
	rows = append(rows, []Button{{Text: "✅ Check subscription", Data: cbCheckSubscription}})
	return Reply{Text: msg, Inline: rows}
}

func (b *Bot) notifyNewUser(ctx context.Context, u Update) {
	if b.sender == nil || b.cfg.AdminChannel == "" {
		return
	}
	b.sender.Dispatch(ctx, b.cfg.AdminChannel, notify.Payload{
		Kind: notify.KindNewUser,
		Text: newUserText(u, b.timestamp()),
		Data: map[string]any{"user_id": u.UserID, "handle": u.Handle, "full_name": u.FullName},
	})
}

func (b *Bot) takeName(ctx context.Context, u Update, sess session.Session) []Reply {
	name := strings.TrimSpace(u.Text)
	if name == "" {
		return text(msgAskName)
	}
	sess.Step = session.StepAwaitingSurname
	sess.PendingName = name
	if err := b.sessions.Put(ctx, sess); err != nil {
		return b.fail("save session", err)
	}
	return text(msgAskSurname)
}

func (b *Bot) takeSurname(ctx context.Context, u Update, sess session.Session) []Reply {
	surname := strings.TrimSpace(u.Text)
	if surname == "" {
		return text(msgAskSurname)
	}
	user := exam.User{
		ID:           u.UserID,
		Name:         sess.PendingName,
		Surname:      surname,
		Handle:       u.Handle,
		RegisteredAt: b.now().In(b.cfg.Location),
	}
	err := b.store.CreateUser(ctx, user)
	if err != nil && !errors.Is(err, exam.ErrConflict) {
		return b.fail("create user", err)
	}
	if err := b.sessions.Delete(ctx, u.UserID); err != nil {
		return b.fail("clear session", err)
	}
	if err != nil {
		// registered concurrently from another device
		return append(text(msgAlreadyRegd), b.menu(ctx))
	}
	return append(text(registeredText(user)), b.menu(ctx))
}

// continuation routes free text once registration is over: menu buttons,
// test selection and answer submission.
func (b *Bot) continuation(ctx context.Context, u Update, sess session.Session) []Reply {
	if !b.gate.Allow(ctx, u.UserID) {
		return []Reply{b.gatingPrompt(msgNotSubscribed)}
	}
	msg := strings.TrimSpace(u.Text)
	if msg == refreshButton {
		return []Reply{b.menu(ctx)}
	}
	if id, ok := parseTestButton(msg); ok {
		return b.selectTest(ctx, u, sess, id)
	}
	if sess.Step == session.StepAwaitingAnswer {
		return b.submit(ctx, u, sess)
	}
	return []Reply{b.menuWith(ctx, msgUseMenu)}
}

func (b *Bot) selectTest(ctx context.Context, u Update, sess session.Session, testID string) []Reply {
	user, err := b.store.GetUser(ctx, u.UserID)
	if errors.Is(err, exam.ErrNotFound) {
		return text(msgRegisterFirst)
	}
	if err != nil {
		return b.fail("get user", err)
	}

	t, err := b.store.GetTest(ctx, testID)
	if err != nil && !errors.Is(err, exam.ErrNotFound) {
		return b.fail("get test", err)
	}
	if err != nil || !t.OpenAt(b.now()) {
		return b.testGone(ctx, u)
	}

	reg, err := b.store.GetRegistration(ctx, t.ID, u.UserID)
	switch {
	case err == nil && reg.Submitted():
		return text(alreadySubmittedText(t.ID))
	case errors.Is(err, exam.ErrNotFound):
		reg = exam.Registration{
			TestID:       t.ID,
			UserID:       user.ID,
			Name:         user.Name,
			Surname:      user.Surname,
			RegisteredAt: b.now().In(b.cfg.Location),
		}
		// a concurrent selection may already have created it
		if err := b.store.SaveRegistrations(ctx, &reg); err != nil && !errors.Is(err, exam.ErrConflict) {
			return b.fail("create registration", err)
		}
	case err != nil:
		return b.fail("get registration", err)
	}

	sess.Step = session.StepAwaitingAnswer
	sess.TestID = t.ID
	sess.PendingName = ""
	if err := b.sessions.Put(ctx, sess); err != nil {
		return b.fail("save session", err)
	}
	return text(enrolledText(t))
}

func (b *Bot) submit(ctx context.Context, u Update, sess session.Session) []Reply {
	t, err := b.store.GetTest(ctx, sess.TestID)
	if errors.Is(err, exam.ErrNotFound) {
		return b.testGone(ctx, u)
	}
	if err != nil {
		return b.fail("get test", err)
	}

	sub := answers.Normalize(u.Text)
	if want := t.QuestionCount(); sub.Len() != want {
		return text(mismatchText(want, sub.Len()))
	}

	reg, err := b.store.GetRegistration(ctx, t.ID, u.UserID)
	if errors.Is(err, exam.ErrNotFound) {
		return b.testGone(ctx, u)
	}
	if err != nil {
		return b.fail("get registration", err)
	}
	if reg.Submitted() {
		_ = b.sessions.Delete(ctx, u.UserID)
		return append(text(alreadySubmittedText(t.ID)), b.menu(ctx))
	}

	reg.Submit(sub, b.now().In(b.cfg.Location))
	if err := b.store.SaveRegistrations(ctx, &reg); err != nil {
		if errors.Is(err, exam.ErrConflict) {
			// lost a race with another submission or a grading run; let the
			// user retry against fresh state
			return text(msgTryAgain)
		}
		return b.fail("save submission", err)
	}
	if err := b.sessions.Delete(ctx, u.UserID); err != nil {
		log.Printf("bot: clear session %s: %v", u.UserID, err)
	}
	return append(text(acceptedText(sub.String())), b.menu(ctx))
}

func (b *Bot) testGone(ctx context.Context, u Update) []Reply {
	if err := b.sessions.Delete(ctx, u.UserID); err != nil {
		return b.fail("clear session", err)
	}
	return append(text(msgTestNotFound), b.menu(ctx))
}
