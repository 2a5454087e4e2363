package bot

import (
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-testbot/internal/exam"
)

const (
	testButtonPrefix = "📝 Test #"
	refreshButton    = "🔄 Refresh"
	answerFormat     = "format: 1a2b3c or abc"
)

// Callback data.
const (
	cbCheckSubscription = "check_subscription"
	cbAdminAddTest      = "admin_add_test"
	cbAdminCheckAnswers = "admin_check_answers"
	cbAdminIRT          = "admin_irt"
	cbAdminViewRegs     = "admin_view_registrations"
	cbCheckPrefix       = "grade_raw:"
	cbIRTPrefix         = "grade_irt:"
)

const (
	msgNotSubscribed   = "⚠️ You need to subscribe to the channel before using the bot.\n\nSubscribe and press \"Check subscription\"."
	msgStillNotSubbed  = "❌ You are not subscribed yet.\n\nPlease subscribe to the channel and try again."
	msgAskName         = "✅ Subscription confirmed!\n\nPlease enter your first name:"
	msgAskSurname      = "Please enter your surname:"
	msgAlreadyRegd     = "✅ You are already registered!"
	msgRegisterFirst   = "Please register first with /start."
	msgTestNotFound    = "❌ Test not found or registration is closed. Please try again."
	msgCancelled       = "❌ Cancelled."
	msgNotAllowed      = "❌ You are not allowed to use this command."
	msgTryAgain        = "⚠️ Something went wrong, please try again."
	msgUseMenu         = "Pick a test from the menu."
	msgNoTests         = "📋 There are no tests available right now."
	msgAdminPanel      = "🔧 Admin panel\n\nChoose an action:"
	msgAskTestID       = "📝 Enter the test id:"
	msgLongTestID      = "❌ The test id is too long. Enter a shorter id:"
	msgAskKey          = "📝 Enter the answer key (" + answerFormat + "):"
	msgEmptyKey        = "❌ The answer key must contain at least one letter. Enter it again (" + answerFormat + "):"
	msgAskDeadline     = "📅 Enter the registration deadline (YYYY-MM-DD HH:MM:SS):\nExample: 2025-02-15 23:59:59"
	msgAskCheckTime    = "🕐 Enter the check time (YYYY-MM-DD HH:MM:SS):\nExample: 2025-02-16 10:00:00"
	msgBadTime         = "❌ Wrong format! Enter it again (YYYY-MM-DD HH:MM:SS):"
	msgNoRegistrations = "❌ No registrations found."
	msgPickCheck       = "📊 Which test do you want to check?"
	msgPickIRT         = "🧮 Which test do you want to score psychometrically?"
)

func testButton(t exam.Test) string {
	return fmt.Sprintf("%s%s (%d questions)", testButtonPrefix, t.ID, t.QuestionCount())
}

// parseTestButton extracts the test id from a menu button label. The id may
// itself contain " (", so the question count suffix is cut from the right.
func parseTestButton(text string) (string, bool) {
	rest, ok := strings.CutPrefix(text, testButtonPrefix)
	if !ok {
		return "", false
	}
	id := rest
	if i := strings.LastIndex(rest, " ("); i >= 0 {
		id = rest[:i]
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

func registeredText(u exam.User) string {
	return fmt.Sprintf("✅ Registration complete!\n\nName: %s\nSurname: %s", u.Name, u.Surname)
}

func enrolledText(t exam.Test) string {
	return fmt.Sprintf("✅ You are registered for Test #%s!\n\n"+
		"📝 Questions: %d\n📅 Deadline: %s\n🕐 Check time: %s\n\n"+
		"📝 Send your answers (%s):",
		t.ID, t.QuestionCount(), exam.FormatTime(t.Deadline), exam.FormatTime(t.CheckTime), answerFormat)
}

func alreadySubmittedText(testID string) string {
	return fmt.Sprintf("ℹ️ You have already submitted answers for Test #%s.", testID)
}

// mismatchText reports a wrong answer count; diff is len(submission)-len(key).
func mismatchText(want, got int) string {
	diff := got - want
	var hint string
	if diff < 0 {
		hint = fmt.Sprintf("You sent %d answer(s) too few.", -diff)
	} else {
		hint = fmt.Sprintf("You sent %d answer(s) too many.", diff)
	}
	return fmt.Sprintf("❌ Wrong number of answers!\n\n"+
		"Required: %d\nReceived: %d\nDifference: %+d\n\n⚠️ %s\n\nPlease send %d answers (%s):",
		want, got, diff, hint, want, answerFormat)
}

func acceptedText(answers string) string {
	return fmt.Sprintf("✅ Your answers were accepted!\n\nYour answers: %s\nCount: %d\n\n"+
		"Results will be announced at check time.", answers, len([]rune(answers)))
}

func testSavedText(t exam.Test) string {
	return fmt.Sprintf("✅ Test #%s saved!\n\nAnswers: %s\nQuestions: %d\nDeadline: %s\nCheck time: %s",
		t.ID, t.AnswerKey, t.QuestionCount(), exam.FormatTime(t.Deadline), exam.FormatTime(t.CheckTime))
}

func newUserText(u Update, at string) string {
	handle := u.Handle
	if handle == "" {
		handle = "none"
	} else {
		handle = "@" + strings.TrimPrefix(handle, "@")
	}
	return fmt.Sprintf("🆕 New user!\n\n👤 User: %s\n🆔 User ID: %s\n📝 Username: %s\n🕐 Date: %s",
		u.FullName, u.UserID, handle, at)
}
