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

const (
	minP       = 0.01
	maxP       = 0.99
	minWeight  = 1.0
	maxWeight  = 4.0
	flatWeight = 2.5

	scoreExponent = 0.75
	scoreScale    = 90.5
)

// ItemStat describes one question across all submitters.
type ItemStat struct {
	Question   int     // 1-based
	PCorrect   float64 // clamped to [0.01, 0.99]
	Difficulty float64 // ln((1-p)/p)
	Weight     float64 // in [1, 4]
}

type PsychometricResult struct {
	UserID      string
	Name        string
	Correct     int
	WeightedRaw float64
	Score       float64 // two decimals
	Tier        Tier
	SubmittedAt time.Time
}

type PsychometricReport struct {
	TestID      string
	Total       int
	MaxPossible float64
	Items       []ItemStat // ascending by weight, then question
	Results     []PsychometricResult
	Chart       []byte // PNG, nil when no renderer is configured
	ChartKey    string // blob key of the stored chart
}

// Matrix builds the binary correctness matrix: one row per submission, one
// column per question of key. Answers beyond a short submission count as 0.
func Matrix(key answers.Sequence, subs []answers.Sequence) [][]uint8 {
	m := make([][]uint8, len(subs))
	for i, s := range subs {
		row := make([]uint8, key.Len())
		for j := range row {
			if r := s.At(j); r != 0 && r == key[j] {
				row[j] = 1
			}
		}
		m[i] = row
	}
	return m
}

// ItemStats computes per-question difficulty and weight in question order.
// m must have at least one row of n columns.
func ItemStats(m [][]uint8, n int) []ItemStat {
	items := make([]ItemStat, n)
	for j := range n {
		sum := 0
		for _, row := range m {
			sum += int(row[j])
		}
		p := clamp(float64(sum)/float64(len(m)), minP, maxP)
		items[j] = ItemStat{Question: j + 1, PCorrect: p, Difficulty: math.Log((1 - p) / p)}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, it := range items {
		lo = math.Min(lo, it.Difficulty)
		hi = math.Max(hi, it.Difficulty)
	}
	for j := range items {
		if hi-lo == 0 {
			items[j].Weight = flatWeight
			continue
		}
		items[j].Weight = (items[j].Difficulty-lo)/(hi-lo)*(maxWeight-minWeight) + minWeight
	}
	return items
}

// FinalScore maps a weighted raw score onto the certificate scale.
func FinalScore(weightedRaw, maxPossible float64) float64 {
	if maxPossible <= 0 {
		return 0
	}
	return round(math.Pow(weightedRaw/maxPossible, scoreExponent)*scoreScale, 2)
}

// ScorePsychometric weights every question by its observed difficulty and
// rescales each submitter's weighted score. Registrations without answers are
// ignored; with no submissions at all it returns ErrNoData.
func ScorePsychometric(testID string, key answers.Sequence, regs []exam.Registration) (PsychometricReport, error) {
	n := key.Len()
	if n == 0 {
		return PsychometricReport{}, ErrEmptyAnswerKey
	}
	var subs []answers.Sequence
	var who []exam.Registration
	for _, r := range regs {
		if r.Submitted() {
			subs = append(subs, answers.Normalize(r.Answers))
			who = append(who, r)
		}
	}
	if len(subs) == 0 {
		return PsychometricReport{}, ErrNoData
	}

	m := Matrix(key, subs)
	items := ItemStats(m, n)
	maxPossible := 0.0
	for _, it := range items {
		maxPossible += it.Weight
	}

	rep := PsychometricReport{TestID: testID, Total: n, MaxPossible: maxPossible}
	for i, row := range m {
		correct, weighted := 0, 0.0
		for j, bit := range row {
			if bit == 1 {
				correct++
				weighted += items[j].Weight
			}
		}
		score := FinalScore(weighted, maxPossible)
		rep.Results = append(rep.Results, PsychometricResult{
			UserID:      who[i].UserID,
			Name:        who[i].FullName(),
			Correct:     correct,
			WeightedRaw: weighted,
			Score:       score,
			Tier:        TierFor(score),
			SubmittedAt: *who[i].SubmittedAt,
		})
	}
	sort.SliceStable(rep.Results, func(i, j int) bool {
		a, b := rep.Results[i], rep.Results[j]
		return ranksBefore(a.Score, b.Score, a.SubmittedAt, b.SubmittedAt, a.UserID, b.UserID)
	})

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Weight != items[j].Weight {
			return items[i].Weight < items[j].Weight
		}
		return items[i].Question < items[j].Question
	})
	rep.Items = items
	return rep, nil
}

func (r PsychometricReport) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🧮 Test #%s psychometric results (%d questions, %d submitters)\n\n",
		r.TestID, r.Total, len(r.Results))
	for i, res := range r.Results {
		fmt.Fprintf(&b, "%d. %s: %.2f (tier %s, %d/%d correct)\n",
			i+1, res.Name, res.Score, res.Tier.Label(), res.Correct, r.Total)
	}
	b.WriteString("\nItem weights (easiest first):\n")
	for _, it := range r.Items {
		fmt.Fprintf(&b, "Q%d: p=%.2f weight=%.2f\n", it.Question, it.PCorrect, it.Weight)
	}
	return b.String()
}

func clamp(x, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, x)) }
