package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-testbot/internal/answers"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
	"github.com/mind-engage/mindengage-testbot/internal/grading"
	"github.com/mind-engage/mindengage-testbot/internal/session"
)

func (b *Bot) adminOnly(u Update, fn func() []Reply) []Reply {
	if !b.admins.Contains(u.UserID) {
		return text(msgNotAllowed)
	}
	return fn()
}

func (b *Bot) adminPanel(u Update) []Reply {
	return b.adminOnly(u, func() []Reply {
		return []Reply{{
			Text: msgAdminPanel,
			Inline: [][]Button{
				{{Text: "➕ Add test", Data: cbAdminAddTest}},
				{{Text: "📊 Check answers", Data: cbAdminCheckAnswers}},
				{{Text: "🧮 Psychometric scoring", Data: cbAdminIRT}},
				{{Text: "📋 Registrations", Data: cbAdminViewRegs}},
			},
		}}
	})
}

func (b *Bot) adminAddTest(ctx context.Context, u Update) []Reply {
	sess := session.Session{UserID: u.UserID, Step: session.StepAdminTestID, Draft: &session.Draft{}}
	if err := b.sessions.Put(ctx, sess); err != nil {
		return b.fail("save session", err)
	}
	return text(msgAskTestID)
}

// adminStep advances the authoring flow by one input.
func (b *Bot) adminStep(ctx context.Context, u Update, sess session.Session) []Reply {
	in := strings.TrimSpace(u.Text)
	if sess.Draft == nil {
		sess.Draft = &session.Draft{}
	}
	var reply string
	switch sess.Step {
	case session.StepAdminTestID:
		if in == "" {
			return text(msgAskTestID)
		}
		if len(in) > exam.MaxTestIDLen {
			return text(msgLongTestID)
		}
		sess.Draft.TestID = in
		sess.Step, reply = session.StepAdminAnswerKey, msgAskKey

	case session.StepAdminAnswerKey:
		if answers.Count(in) == 0 {
			return text(msgEmptyKey)
		}
		sess.Draft.AnswerKey = in
		sess.Step, reply = session.StepAdminDeadline, msgAskDeadline

	case session.StepAdminDeadline:
		deadline, err := exam.ParseTime(in, b.cfg.Location)
		if err != nil {
			return text(msgBadTime)
		}
		sess.Draft.Deadline = deadline
		sess.Step, reply = session.StepAdminCheckTime, msgAskCheckTime

	case session.StepAdminCheckTime:
		checkTime, err := exam.ParseTime(in, b.cfg.Location)
		if err != nil {
			return text(msgBadTime)
		}
		return b.saveTest(ctx, u, sess.Draft, checkTime)
	}

	if err := b.sessions.Put(ctx, sess); err != nil {
		return b.fail("save session", err)
	}
	return text(reply)
}

func (b *Bot) saveTest(ctx context.Context, u Update, d *session.Draft, checkTime time.Time) []Reply {
	t := exam.Test{
		ID:        d.TestID,
		AnswerKey: d.AnswerKey,
		Deadline:  d.Deadline.In(b.cfg.Location),
		CheckTime: checkTime,
		CreatedAt: b.now().In(b.cfg.Location),
	}
	if err := b.store.PutTest(ctx, t); err != nil {
		// keep the draft so the admin can resend the check time
		return b.fail("save test", err)
	}
	if err := b.sessions.Delete(ctx, u.UserID); err != nil {
		return b.fail("clear session", err)
	}
	return text(testSavedText(t))
}

// adminListTests offers every test with at least one registration.
func (b *Bot) adminListTests(ctx context.Context, prefix, prompt string) []Reply {
	counts, err := b.store.RegistrationCounts(ctx)
	if err != nil {
		return b.fail("registration counts", err)
	}
	tests, err := b.store.ListTests(ctx)
	if err != nil {
		return b.fail("list tests", err)
	}
	var rows [][]Button
	for _, t := range tests {
		if counts[t.ID] > 0 {
			rows = append(rows, []Button{{Text: "Test #" + t.ID, Data: prefix + t.ID}})
		}
	}
	if len(rows) == 0 {
		return text(msgNoRegistrations)
	}
	return []Reply{{Text: prompt, Inline: rows}}
}

func (b *Bot) adminViewRegistrations(ctx context.Context) []Reply {
	tests, err := b.store.ListTests(ctx)
	if err != nil {
		return b.fail("list tests", err)
	}
	var sb strings.Builder
	sb.WriteString("📋 All registrations:\n\n")
	found := false
	for _, t := range tests {
		regs, err := b.store.ListRegistrations(ctx, t.ID)
		if err != nil {
			return b.fail("list registrations", err)
		}
		if len(regs) == 0 {
			continue
		}
		found = true
		fmt.Fprintf(&sb, "📝 Test #%s (%d users):\n", t.ID, len(regs))
		names := make([]string, 0, len(regs))
		for _, r := range regs {
			mark := ""
			if r.Submitted() {
				mark = " ✔"
			}
			names = append(names, r.FullName()+mark)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(&sb, "   • %s\n", n)
		}
		sb.WriteString("\n")
	}
	if !found {
		return text(msgNoRegistrations)
	}
	return text(strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) adminGradeRaw(ctx context.Context, testID string) []Reply {
	if b.grader == nil {
		return text(msgTryAgain)
	}
	rep, err := b.grader.GradeRaw(ctx, testID)
	if err != nil {
		return b.gradingError(testID, err)
	}
	return text(rep.Text() + "\n✅ Results were sent to every participant.")
}

func (b *Bot) adminScoreIRT(ctx context.Context, testID string) []Reply {
	if b.grader == nil {
		return text(msgTryAgain)
	}
	rep, err := b.grader.ScorePsychometric(ctx, testID)
	if err != nil {
		return b.gradingError(testID, err)
	}
	out := text(rep.Text())
	if len(rep.Chart) > 0 {
		out = append(out, Reply{Text: "Question weights, Test #" + rep.TestID, Photo: rep.Chart})
	}
	return out
}

func (b *Bot) gradingError(testID string, err error) []Reply {
	switch {
	case errors.Is(err, exam.ErrNotFound):
		return text(fmt.Sprintf("❌ Test #%s not found.", testID))
	case errors.Is(err, grading.ErrNoData):
		return text(fmt.Sprintf("❌ Nobody has submitted answers for Test #%s yet.", testID))
	case errors.Is(err, grading.ErrEmptyAnswerKey):
		return text(fmt.Sprintf("❌ Test #%s has an empty answer key.", testID))
	}
	return b.fail("grade "+testID, err)
}
