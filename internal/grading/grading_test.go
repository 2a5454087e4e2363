package grading_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-testbot/internal/answers"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
	"github.com/mind-engage/mindengage-testbot/internal/grading"
	"github.com/mind-engage/mindengage-testbot/internal/notify"
	"github.com/mind-engage/mindengage-testbot/internal/storage"
	syncx "github.com/mind-engage/mindengage-testbot/internal/sync"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func reg(user, answersRaw string, submittedMin int) exam.Registration {
	r := exam.Registration{
		TestID: "1", UserID: user, Name: "N" + user, Surname: "S" + user,
		RegisteredAt: t0,
	}
	if answersRaw != "" {
		r.Submit(answers.Normalize(answersRaw), t0.Add(time.Duration(submittedMin)*time.Minute))
	}
	return r
}

func TestScoreRaw(t *testing.T) {
	regs := []exam.Registration{
		reg("a", "abcba", 5),
		reg("b", "abcab", 9),
		reg("c", "", 0),
		reg("d", "ab", 1),
		reg("e", "abcab", 3),
	}
	rep, err := grading.ScoreRaw("1", answers.Normalize("abcab"), regs)
	require.NoError(t, err)

	require.Len(t, rep.Results, 4)
	assert.Equal(t, []string{"e", "b", "a", "d"}, userIDs(rep.Results))
	assert.Equal(t, "5/5", rep.Results[0].Score())
	assert.Equal(t, 100.0, rep.Results[0].Percent)

	a := rep.Results[2]
	assert.Equal(t, 3, a.Correct)
	assert.Equal(t, "3/5", a.Score())
	assert.Equal(t, 60.0, a.Percent)

	// short submissions only score the overlap
	assert.Equal(t, 2, rep.Results[3].Correct)
	assert.Equal(t, []string{"Nc Sc"}, rep.NotSubmitted)
	assert.Contains(t, rep.Text(), "Not submitted:")
}

func TestScoreRawPercentRounding(t *testing.T) {
	rep, err := grading.ScoreRaw("1", answers.Normalize("abc"), []exam.Registration{reg("a", "abd", 0)})
	require.NoError(t, err)
	assert.Equal(t, 66.7, rep.Results[0].Percent)
}

func TestScoreRawTieBreak(t *testing.T) {
	regs := []exam.Registration{reg("z", "a", 1), reg("y", "a", 1), reg("x", "a", 2)}
	rep, err := grading.ScoreRaw("1", answers.Normalize("a"), regs)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "z", "x"}, userIDs(rep.Results))
}

func TestScoreEmptyKey(t *testing.T) {
	_, err := grading.ScoreRaw("1", answers.Normalize("123"), nil)
	assert.ErrorIs(t, err, grading.ErrEmptyAnswerKey)
	_, err = grading.ScorePsychometric("1", nil, []exam.Registration{reg("a", "a", 0)})
	assert.ErrorIs(t, err, grading.ErrEmptyAnswerKey)
}

func TestMatrix(t *testing.T) {
	key := answers.Normalize("abc")
	m := grading.Matrix(key, []answers.Sequence{answers.Normalize("abd"), answers.Normalize("a"), nil})
	assert.Equal(t, [][]uint8{{1, 1, 0}, {1, 0, 0}, {0, 0, 0}}, m)
}

func TestItemStats(t *testing.T) {
	// q1 answered by everyone, q2 by half, q3 by nobody
	m := [][]uint8{{1, 1, 0}, {1, 0, 0}}
	items := grading.ItemStats(m, 3)
	require.Len(t, items, 3)

	assert.InDelta(t, 0.99, items[0].PCorrect, 1e-9)
	assert.InDelta(t, 0.5, items[1].PCorrect, 1e-9)
	assert.InDelta(t, 0.01, items[2].PCorrect, 1e-9)

	assert.InDelta(t, math.Log(0.01/0.99), items[0].Difficulty, 1e-9)
	assert.InDelta(t, 0, items[1].Difficulty, 1e-9)

	assert.InDelta(t, 1, items[0].Weight, 1e-9)
	assert.InDelta(t, 2.5, items[1].Weight, 1e-9)
	assert.InDelta(t, 4, items[2].Weight, 1e-9)
}

func TestScorePsychometricAllCorrect(t *testing.T) {
	regs := []exam.Registration{reg("a", "abcd", 0), reg("b", "abcd", 1), reg("c", "", 0)}
	rep, err := grading.ScorePsychometric("1", answers.Normalize("abcd"), regs)
	require.NoError(t, err)

	for _, it := range rep.Items {
		assert.Equal(t, 2.5, it.Weight)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, questions(rep.Items))
	require.Len(t, rep.Results, 2, "non-submitters are excluded")
	for _, r := range rep.Results {
		assert.Equal(t, 90.5, r.Score)
		assert.Equal(t, grading.TierAPlus, r.Tier)
		assert.Equal(t, 4, r.Correct)
	}
}

func TestScorePsychometricWeighted(t *testing.T) {
	key := answers.Normalize("abc")
	regs := []exam.Registration{reg("a", "abc", 0), reg("b", "abx", 0)}
	rep, err := grading.ScorePsychometric("1", key, regs)
	require.NoError(t, err)

	// q1, q2 flat at p=0.99; q3 at p=0.5 is the hardest
	assert.Equal(t, []int{1, 2, 3}, questions(rep.Items))
	assert.InDelta(t, 6, rep.MaxPossible, 1e-9)

	assert.Equal(t, "a", rep.Results[0].UserID)
	assert.Equal(t, 90.5, rep.Results[0].Score)

	b := rep.Results[1]
	assert.InDelta(t, 2, b.WeightedRaw, 1e-9)
	assert.Equal(t, math.Round(math.Pow(2.0/6.0, 0.75)*90.5*100)/100, b.Score)
	assert.Equal(t, grading.TierFor(b.Score), b.Tier)
}

func TestScorePsychometricNoData(t *testing.T) {
	_, err := grading.ScorePsychometric("1", answers.Normalize("ab"), []exam.Registration{reg("a", "", 0)})
	assert.ErrorIs(t, err, grading.ErrNoData)
}

func TestFinalScore(t *testing.T) {
	assert.Equal(t, 90.5, grading.FinalScore(10, 10))
	assert.Equal(t, 0.0, grading.FinalScore(0, 10))
	assert.Equal(t, 0.0, grading.FinalScore(1, 0))
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score float64
		want  grading.Tier
	}{
		{90.5, grading.TierAPlus},
		{70, grading.TierAPlus},
		{69.99, grading.TierA},
		{65, grading.TierA},
		{60, grading.TierBPlus},
		{55, grading.TierB},
		{50, grading.TierCPlus},
		{46, grading.TierC},
		{45.99, grading.TierNone},
		{0, grading.TierNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, grading.TierFor(tt.score), "score %v", tt.score)
	}
	assert.Equal(t, "-", grading.TierNone.Label())
}

// --- service ---

type recordingSender struct {
	mu   sync.Mutex
	sent map[string]notify.Payload
}

func (r *recordingSender) Dispatch(_ context.Context, to string, p notify.Payload) notify.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string]notify.Payload{}
	}
	r.sent[to] = p
	return notify.Outcome{Recipient: to, Kind: p.Kind, Status: notify.StatusSent, Attempts: 1}
}

type fakeChart struct{ calls int }

func (f *fakeChart) RenderDifficultyChart(items []grading.ItemStat) ([]byte, error) {
	f.calls++
	return []byte("PNG"), nil
}

func seed(t *testing.T, key string, regs ...exam.Registration) exam.Store {
	t.Helper()
	ctx := context.Background()
	s := exam.NewInMemoryStore()
	require.NoError(t, s.PutTest(ctx, exam.Test{
		ID: "1", AnswerKey: key, Deadline: t0.Add(time.Hour), CheckTime: t0.Add(2 * time.Hour), CreatedAt: t0,
	}))
	for i := range regs {
		require.NoError(t, s.SaveRegistrations(ctx, &regs[i]))
	}
	return s
}

func TestServiceGradeRaw(t *testing.T) {
	ctx := context.Background()
	store := seed(t, "ABCAB", reg("a", "abcba", 0), reg("b", "", 0))
	sender := &recordingSender{}
	events := syncx.NewMemoryLog()
	svc := grading.NewService(store, grading.WithSender(sender), grading.WithEventLog(events))

	rep, err := svc.GradeRaw(ctx, "1")
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)

	got, err := store.GetRegistration(ctx, "1", "a")
	require.NoError(t, err)
	assert.Equal(t, "3/5", got.Score)
	require.NotNil(t, got.RawCorrect)
	assert.Equal(t, 3, *got.RawCorrect)

	untouched, _ := store.GetRegistration(ctx, "1", "b")
	assert.Empty(t, untouched.Score)

	p, ok := sender.sent["a"]
	require.True(t, ok)
	assert.Equal(t, notify.KindRawResult, p.Kind)
	assert.Contains(t, p.Text, "3/5 (60.0%)")
	assert.NotContains(t, sender.sent, "b")

	// grading again yields the same stored values
	_, err = svc.GradeRaw(ctx, "1")
	require.NoError(t, err)
	again, _ := store.GetRegistration(ctx, "1", "a")
	assert.Equal(t, got.Score, again.Score)
	assert.Equal(t, *got.RawCorrect, *again.RawCorrect)

	runs, _ := events.Recent(ctx, syncx.TypeGradingRun, 10)
	assert.Len(t, runs, 2)
}

func TestServiceGradeRawIsolatesFailedDeliveries(t *testing.T) {
	store := seed(t, "abc", reg("bad", "abc", 0), reg("slow", "abc", 1), reg("good", "abx", 0))
	n := notify.NotifierFunc(func(ctx context.Context, to string, _ notify.Payload) error {
		switch to {
		case "bad":
			return notify.Permanent(errors.New("chat not found"))
		case "slow":
			<-ctx.Done()
			return ctx.Err()
		}
		return ctx.Err()
	})
	events := syncx.NewMemoryLog()
	d := notify.NewDispatcher(n, notify.WithEventLog(events), notify.WithRetry(notify.RetryConfig{
		MaxAttempts: 3, Timeout: 100 * time.Millisecond,
	}))
	svc := grading.NewService(store, grading.WithSender(d))

	// the caller's deadline runs out while "slow" is still being delivered
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	rep, err := svc.GradeRaw(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "slow", "good"}, userIDs(rep.Results))

	bg := context.Background()
	sent, _ := events.Recent(bg, syncx.TypeDeliverySent, 10)
	require.Len(t, sent, 1)
	assert.Equal(t, "good", sent[0].Key)

	failed, _ := events.Recent(bg, syncx.TypeDeliveryFailed, 10)
	var failedTo []string
	for _, e := range failed {
		failedTo = append(failedTo, e.Key)
	}
	assert.ElementsMatch(t, []string{"bad", "slow"}, failedTo)

	for user, want := range map[string]string{"bad": "3/3", "slow": "3/3", "good": "2/3"} {
		got, err := store.GetRegistration(bg, "1", user)
		require.NoError(t, err)
		assert.Equal(t, want, got.Score, user)
	}
}

func TestServiceUnknownTest(t *testing.T) {
	svc := grading.NewService(exam.NewInMemoryStore())
	_, err := svc.GradeRaw(context.Background(), "nope")
	assert.ErrorIs(t, err, exam.ErrNotFound)
}

func TestServicePsychometric(t *testing.T) {
	ctx := context.Background()
	store := seed(t, "abc", reg("a", "abc", 0), reg("b", "abx", 1), reg("c", "", 0))
	sender := &recordingSender{}
	charts := &fakeChart{}
	blobs := storage.NewMemStore()
	svc := grading.NewService(store,
		grading.WithSender(sender),
		grading.WithChartRenderer(charts),
		grading.WithBlobStore(blobs),
	)

	rep, err := svc.ScorePsychometric(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, charts.calls)
	assert.Equal(t, "charts/1.png", rep.ChartKey)
	assert.Equal(t, []byte("PNG"), rep.Chart)

	a, _ := store.GetRegistration(ctx, "1", "a")
	require.NotNil(t, a.WeightedScore)
	assert.Equal(t, 90.5, *a.WeightedScore)
	assert.Equal(t, "A+", a.Tier)
	assert.Equal(t, 3, *a.RawCorrect)

	assert.Len(t, sender.sent, 2)
	assert.Equal(t, []byte("PNG"), sender.sent["b"].Image)
	assert.Equal(t, notify.KindPsychometricResult, sender.sent["b"].Kind)

	rc, err := blobs.Get("charts/1.png")
	require.NoError(t, err)
	rc.Close()
}

func TestServicePsychometricNoDataWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := seed(t, "abc", reg("a", "", 0))
	before, _ := store.GetRegistration(ctx, "1", "a")
	sender := &recordingSender{}
	charts := &fakeChart{}
	svc := grading.NewService(store, grading.WithSender(sender), grading.WithChartRenderer(charts))

	_, err := svc.ScorePsychometric(ctx, "1")
	assert.ErrorIs(t, err, grading.ErrNoData)

	after, _ := store.GetRegistration(ctx, "1", "a")
	assert.Equal(t, before.Version, after.Version)
	assert.Empty(t, sender.sent)
	assert.Zero(t, charts.calls)
}

// conflictOnce fails the first batch write as if another writer got there first.
type conflictOnce struct {
	exam.Store
	failed bool
}

func (c *conflictOnce) SaveRegistrations(ctx context.Context, regs ...*exam.Registration) error {
	if !c.failed && len(regs) > 0 {
		c.failed = true
		return exam.ErrConflict
	}
	return c.Store.SaveRegistrations(ctx, regs...)
}

func TestServiceRecomputesOnConflict(t *testing.T) {
	ctx := context.Background()
	store := &conflictOnce{Store: seed(t, "ab", reg("a", "ab", 0))}
	events := syncx.NewMemoryLog()
	svc := grading.NewService(store, grading.WithEventLog(events))

	_, err := svc.GradeRaw(ctx, "1")
	require.NoError(t, err)
	got, _ := store.GetRegistration(ctx, "1", "a")
	assert.Equal(t, "2/2", got.Score)

	runs, _ := events.Recent(ctx, syncx.TypeGradingRun, 1)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].DataJSON, `"attempts":2`)
}

func TestServiceGivesUpAfterRetries(t *testing.T) {
	store := seed(t, "ab", reg("a", "ab", 0))
	always := &alwaysConflict{Store: store}
	svc := grading.NewService(always, grading.WithConflictRetries(2))
	_, err := svc.GradeRaw(context.Background(), "1")
	assert.ErrorIs(t, err, exam.ErrConflict)
	assert.Equal(t, 3, always.calls)
}

type alwaysConflict struct {
	exam.Store
	calls int
}

func (a *alwaysConflict) SaveRegistrations(context.Context, ...*exam.Registration) error {
	a.calls++
	return exam.ErrConflict
}

func userIDs(rs []grading.RawResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.UserID
	}
	return out
}

func questions(items []grading.ItemStat) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.Question
	}
	return out
}
