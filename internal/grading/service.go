// Package grading scores submitted answer strings, either as plain
// correct-answer counts or weighted by observed item difficulty, and sends
// each submitter their result.
package grading

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mind-engage/mindengage-testbot/internal/exam"
	"github.com/mind-engage/mindengage-testbot/internal/metrics"
	"github.com/mind-engage/mindengage-testbot/internal/notify"
	"github.com/mind-engage/mindengage-testbot/internal/storage"
	syncx "github.com/mind-engage/mindengage-testbot/internal/sync"
)

var (
	ErrNoData         = errors.New("no submissions to score")
	ErrEmptyAnswerKey = errors.New("answer key has no letters")
)

const (
	ModeRaw          = "raw"
	ModePsychometric = "psychometric"
)

// ChartRenderer draws item weights; items arrive sorted easiest first.
type ChartRenderer interface {
	RenderDifficultyChart(items []ItemStat) ([]byte, error)
}

// Sender delivers one payload and reports how it went.
type Sender interface {
	Dispatch(ctx context.Context, recipient string, p notify.Payload) notify.Outcome
}

type Service struct {
	store      exam.Store
	sender     Sender
	charts     ChartRenderer
	blobs      storage.BlobStore
	events     syncx.Log
	maxRetries int
}

// Options

type Option func(*Service)

func WithSender(s Sender) Option               { return func(g *Service) { g.sender = s } }
func WithChartRenderer(r ChartRenderer) Option { return func(g *Service) { g.charts = r } }
func WithBlobStore(b storage.BlobStore) Option { return func(g *Service) { g.blobs = b } }
func WithEventLog(l syncx.Log) Option          { return func(g *Service) { g.events = l } }

// WithConflictRetries bounds how often a run is recomputed after a
// concurrent write to the same registrations.
func WithConflictRetries(n int) Option { return func(g *Service) { g.maxRetries = n } }

func NewService(store exam.Store, opts ...Option) *Service {
	s := &Service{store: store, maxRetries: 3}
	for _, o := range opts {
		o(s)
	}
	return s
}

// GradeRaw scores every submission of testID, stores "k/n" and the correct
// count on each registration, then sends each submitter their result.
func (s *Service) GradeRaw(ctx context.Context, testID string) (RawReport, error) {
	var rep RawReport
	attempts, err := s.withConflictRetry(func() error {
		t, regs, err := s.load(ctx, testID)
		if err != nil {
			return err
		}
		rep, err = ScoreRaw(t.ID, t.Key(), regs)
		if err != nil {
			return err
		}
		byUser := make(map[string]RawResult, len(rep.Results))
		for _, res := range rep.Results {
			byUser[res.UserID] = res
		}
		var updates []*exam.Registration
		for i := range regs {
			res, ok := byUser[regs[i].UserID]
			if !ok {
				continue
			}
			correct := res.Correct
			regs[i].Score = res.Score()
			regs[i].RawCorrect = &correct
			updates = append(updates, &regs[i])
		}
		return s.store.SaveRegistrations(ctx, updates...)
	})
	s.finish(ctx, ModeRaw, testID, attempts, len(rep.Results), err)
	if err != nil {
		return RawReport{}, err
	}

	for _, res := range rep.Results {
		s.send(ctx, res.UserID, notify.Payload{
			Kind: notify.KindRawResult,
			Text: fmt.Sprintf("✅ Test #%s results\nCorrect answers: %s\nYour answers: %s\nScore: %s (%.1f%%)",
				rep.TestID, rep.Key, res.Answers, res.Score(), res.Percent),
			Data: map[string]any{
				"test_id": rep.TestID, "correct": res.Correct, "total": res.Total, "percent": res.Percent,
			},
		})
	}
	return rep, nil
}

// ScorePsychometric weights questions by difficulty, stores the correct
// count, weighted score and tier of every submitter, renders the item chart
// and sends each submitter their result with the chart attached.
func (s *Service) ScorePsychometric(ctx context.Context, testID string) (PsychometricReport, error) {
	var rep PsychometricReport
	attempts, err := s.withConflictRetry(func() error {
		t, regs, err := s.load(ctx, testID)
		if err != nil {
			return err
		}
		rep, err = ScorePsychometric(t.ID, t.Key(), regs)
		if err != nil {
			return err
		}
		byUser := make(map[string]PsychometricResult, len(rep.Results))
		for _, res := range rep.Results {
			byUser[res.UserID] = res
		}
		var updates []*exam.Registration
		for i := range regs {
			res, ok := byUser[regs[i].UserID]
			if !ok {
				continue
			}
			correct, score := res.Correct, res.Score
			regs[i].RawCorrect = &correct
			regs[i].WeightedScore = &score
			regs[i].Tier = string(res.Tier)
			updates = append(updates, &regs[i])
		}
		return s.store.SaveRegistrations(ctx, updates...)
	})
	s.finish(ctx, ModePsychometric, testID, attempts, len(rep.Results), err)
	if err != nil {
		return PsychometricReport{}, err
	}

	s.renderChart(&rep)
	for _, res := range rep.Results {
		s.send(ctx, res.UserID, notify.Payload{
			Kind: notify.KindPsychometricResult,
			Text: fmt.Sprintf("🧮 Test #%s results\nCorrect answers: %d/%d\nFinal score: %.2f\nCertificate: %s",
				rep.TestID, res.Correct, rep.Total, res.Score, res.Tier.Label()),
			Image: rep.Chart,
			Data: map[string]any{
				"test_id": rep.TestID, "correct": res.Correct, "score": res.Score, "tier": string(res.Tier),
			},
		})
	}
	return rep, nil
}

func (s *Service) load(ctx context.Context, testID string) (exam.Test, []exam.Registration, error) {
	t, err := s.store.GetTest(ctx, testID)
	if err != nil {
		return exam.Test{}, nil, fmt.Errorf("load test %s: %w", testID, err)
	}
	regs, err := s.store.ListRegistrations(ctx, testID)
	if err != nil {
		return exam.Test{}, nil, fmt.Errorf("load registrations of %s: %w", testID, err)
	}
	return t, regs, nil
}

// withConflictRetry runs fn until it stops failing with exam.ErrConflict or
// the retry budget is spent. It returns the number of runs.
func (s *Service) withConflictRetry(fn func() error) (int, error) {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !errors.Is(err, exam.ErrConflict) || attempt >= s.maxRetries {
			return attempt + 1, err
		}
		log.Printf("grading: concurrent write detected, recomputing (attempt %d)", attempt+2)
	}
}

func (s *Service) renderChart(rep *PsychometricReport) {
	if s.charts == nil {
		return
	}
	png, err := s.charts.RenderDifficultyChart(rep.Items)
	if err != nil {
		log.Printf("grading: chart for test %s: %v", rep.TestID, err)
		return
	}
	rep.Chart = png
	if s.blobs == nil {
		return
	}
	key, err := s.blobs.Put(ChartKey(rep.TestID), bytes.NewReader(png))
	if err != nil {
		log.Printf("grading: store chart for test %s: %v", rep.TestID, err)
		return
	}
	rep.ChartKey = key
}

// ChartKey is where the difficulty chart of testID is stored.
func ChartKey(testID string) string { return "charts/" + testID + ".png" }

func (s *Service) send(ctx context.Context, recipient string, p notify.Payload) {
	if s.sender == nil {
		return
	}
	s.sender.Dispatch(ctx, recipient, p)
}

func (s *Service) finish(ctx context.Context, mode, testID string, attempts, scored int, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrNoData):
		outcome = "no_data"
	case err != nil:
		outcome = "error"
	}
	metrics.GradingRuns.WithLabelValues(mode, outcome).Inc()
	if s.events == nil {
		return
	}
	data := map[string]any{"mode": mode, "outcome": outcome, "attempts": attempts, "scored": scored}
	if err != nil {
		data["error"] = err.Error()
	}
	if lerr := s.events.Append(ctx, syncx.NewEvent(syncx.TypeGradingRun, testID, data)); lerr != nil {
		log.Printf("grading: event log append: %v", lerr)
	}
}
