package exam

import (
	"fmt"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-testbot/internal/answers"
)

// TimeLayout is the only accepted timestamp form, for storage and admin input.
const TimeLayout = "2006-01-02 15:04:05"

// ParseTime parses s with TimeLayout in loc. Anything else is an error.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp must look like %s", ErrInvalid, TimeLayout)
	}
	return t, nil
}

// FormatTime renders t with TimeLayout.
func FormatTime(t time.Time) string { return t.Format(TimeLayout) }

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Surname      string    `json:"surname"`
	Handle       string    `json:"handle,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

func (u User) FullName() string { return strings.TrimSpace(u.Name + " " + u.Surname) }

func (u User) Validate() error {
	switch {
	case strings.TrimSpace(u.ID) == "":
		return fmt.Errorf("%w: user id required", ErrInvalid)
	case strings.TrimSpace(u.Name) == "":
		return fmt.Errorf("%w: user name required", ErrInvalid)
	case strings.TrimSpace(u.Surname) == "":
		return fmt.Errorf("%w: user surname required", ErrInvalid)
	case u.RegisteredAt.IsZero():
		return fmt.Errorf("%w: user registered_at required", ErrInvalid)
	}
	return nil
}

// MaxTestIDLen bounds test ids in bytes so that grading button payloads
// stay within the platform's 64-byte callback limit.
const MaxTestIDLen = 48

// Test is an answer-key campaign. AnswerKey keeps the admin's raw input;
// Key() gives the normalized form.
type Test struct {
	ID        string    `json:"id"`
	AnswerKey string    `json:"answer_key"`
	Deadline  time.Time `json:"deadline"`
	CheckTime time.Time `json:"check_time"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Test) Key() answers.Sequence { return answers.Normalize(t.AnswerKey) }

func (t Test) QuestionCount() int { return len(t.Key()) }

// OpenAt reports whether enrollment is still possible at now.
func (t Test) OpenAt(now time.Time) bool {
	return now.Before(t.Deadline) && t.QuestionCount() > 0
}

func (t Test) Validate() error {
	switch {
	case strings.TrimSpace(t.ID) == "":
		return fmt.Errorf("%w: test id required", ErrInvalid)
	case len(t.ID) > MaxTestIDLen:
		return fmt.Errorf("%w: test id longer than %d bytes", ErrInvalid, MaxTestIDLen)
	case t.QuestionCount() == 0:
		return fmt.Errorf("%w: answer key has no letters", ErrInvalid)
	case t.Deadline.IsZero():
		return fmt.Errorf("%w: deadline required", ErrInvalid)
	case t.CheckTime.IsZero():
		return fmt.Errorf("%w: check time required", ErrInvalid)
	}
	return nil
}

// Registration is one user's enrollment in one test. Version is bumped by the
// store on every successful write; a zero Version means "not stored yet".
type Registration struct {
	TestID       string     `json:"test_id"`
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	Surname      string     `json:"surname"`
	RegisteredAt time.Time  `json:"registered_at"`
	Answers      string     `json:"answers,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`

	Score         string   `json:"score,omitempty"` // "k/n"
	RawCorrect    *int     `json:"raw_correct,omitempty"`
	WeightedScore *float64 `json:"weighted_score,omitempty"`
	Tier          string   `json:"certificate_tier,omitempty"`

	Version int64 `json:"version"`
}

func (r Registration) Submitted() bool { return r.SubmittedAt != nil }

func (r Registration) FullName() string { return strings.TrimSpace(r.Name + " " + r.Surname) }

func (r Registration) Validate() error {
	switch {
	case strings.TrimSpace(r.TestID) == "" || strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: registration needs test and user ids", ErrInvalid)
	case r.RegisteredAt.IsZero():
		return fmt.Errorf("%w: registration registered_at required", ErrInvalid)
	case r.Submitted() != (r.Answers != ""):
		return fmt.Errorf("%w: answers and submitted_at must be set together", ErrInvalid)
	case r.Answers != "" && answers.Normalize(r.Answers).String() != r.Answers:
		return fmt.Errorf("%w: answers must be normalized letters", ErrInvalid)
	}
	return nil
}

// Submit records a normalized submission at t.
func (r *Registration) Submit(sub answers.Sequence, t time.Time) {
	r.Answers = sub.String()
	r.SubmittedAt = &t
}
