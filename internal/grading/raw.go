package grading

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-testbot/internal/answers"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
)

type RawResult struct {
	UserID      string
	Name        string
	Answers     string
	Correct     int
	Total       int
	Percent     float64 // one decimal
	SubmittedAt time.Time
}

// Score renders "k/n".
func (r RawResult) Score() string { return fmt.Sprintf("%d/%d", r.Correct, r.Total) }

type RawReport struct {
	TestID       string
	Key          string
	Total        int
	Results      []RawResult // best first
	NotSubmitted []string    // full names
}

// ScoreRaw grades every submitted registration against key. It does not touch
// storage. Results are ordered by score descending, then earliest submission,
// then user id.
func ScoreRaw(testID string, key answers.Sequence, regs []exam.Registration) (RawReport, error) {
	n := key.Len()
	if n == 0 {
		return RawReport{}, ErrEmptyAnswerKey
	}
	rep := RawReport{TestID: testID, Key: key.String(), Total: n}
	for _, r := range regs {
		if !r.Submitted() {
			rep.NotSubmitted = append(rep.NotSubmitted, r.FullName())
			continue
		}
		sub := answers.Normalize(r.Answers)
		correct := sub.Matches(key)
		rep.Results = append(rep.Results, RawResult{
			UserID:      r.UserID,
			Name:        r.FullName(),
			Answers:     sub.String(),
			Correct:     correct,
			Total:       n,
			Percent:     round(100*float64(correct)/float64(n), 1),
			SubmittedAt: *r.SubmittedAt,
		})
	}
	sort.SliceStable(rep.Results, func(i, j int) bool {
		a, b := rep.Results[i], rep.Results[j]
		return ranksBefore(float64(a.Correct), float64(b.Correct), a.SubmittedAt, b.SubmittedAt, a.UserID, b.UserID)
	})
	return rep, nil
}

// Text is the aggregate report sent to the admin.
func (r RawReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Test #%s results\nAnswer key: %s (%d questions)\n\n", r.TestID, r.Key, r.Total)
	if len(r.Results) == 0 {
		b.WriteString("Nobody has submitted answers yet.\n")
	}
	for i, res := range r.Results {
		fmt.Fprintf(&b, "%d. %s: %s (%.1f%%)\n", i+1, res.Name, res.Score(), res.Percent)
	}
	if len(r.NotSubmitted) > 0 {
		b.WriteString("\nNot submitted:\n")
		for _, name := range r.NotSubmitted {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	return b.String()
}

// ranksBefore orders higher scores first, then earlier submissions, then ids.
func ranksBefore(sa, sb float64, ta, tb time.Time, ua, ub string) bool {
	if sa != sb {
		return sa > sb
	}
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return ua < ub
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
