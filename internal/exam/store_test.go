package exam_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-testbot/internal/answers"
	"github.com/mind-engage/mindengage-testbot/internal/db"
	"github.com/mind-engage/mindengage-testbot/internal/exam"
)

var base = time.Date(2025, 2, 15, 10, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) exam.Store {
	t.Helper()
	h, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	s := exam.NewSQLStore(h, "sqlite", time.UTC)
	t.Cleanup(func() { s.Close() })
	return s
}

func backends(t *testing.T) map[string]func(t *testing.T) exam.Store {
	return map[string]func(t *testing.T) exam.Store{
		"memory": func(*testing.T) exam.Store { return exam.NewInMemoryStore() },
		"sqlite": openSQLite,
	}
}

func sampleTest(id string) exam.Test {
	return exam.Test{
		ID:        id,
		AnswerKey: "1a 2b 3c",
		Deadline:  base.Add(24 * time.Hour),
		CheckTime: base.Add(48 * time.Hour),
		CreatedAt: base,
	}
}

func TestUsers(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			_, err := s.GetUser(ctx, "42")
			require.ErrorIs(t, err, exam.ErrNotFound)

			u := exam.User{ID: "42", Name: "Ada", Surname: "Lovelace", Handle: "ada", RegisteredAt: base}
			require.NoError(t, s.CreateUser(ctx, u))
			require.ErrorIs(t, s.CreateUser(ctx, u), exam.ErrConflict)

			got, err := s.GetUser(ctx, "42")
			require.NoError(t, err)
			assert.Equal(t, "Ada Lovelace", got.FullName())
			assert.Equal(t, "ada", got.Handle)
			assert.True(t, got.RegisteredAt.Equal(base))

			require.ErrorIs(t, s.CreateUser(ctx, exam.User{ID: "7", RegisteredAt: base}), exam.ErrInvalid)
		})
	}
}

func TestTestsLastWriteWins(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()

			require.NoError(t, s.PutTest(ctx, sampleTest("2")))
			require.NoError(t, s.PutTest(ctx, sampleTest("1")))
			updated := sampleTest("1")
			updated.AnswerKey = "abcd"
			require.NoError(t, s.PutTest(ctx, updated))

			got, err := s.GetTest(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, 4, got.QuestionCount())
			assert.True(t, got.Deadline.Equal(updated.Deadline))

			all, err := s.ListTests(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "1", all[0].ID)
			assert.Equal(t, "2", all[1].ID)

			_, err = s.GetTest(ctx, "nope")
			assert.ErrorIs(t, err, exam.ErrNotFound)
		})
	}
}

func TestPutTestRejectsEmptyKey(t *testing.T) {
	s := exam.NewInMemoryStore()
	bad := sampleTest("x")
	bad.AnswerKey = "1 2 3"
	assert.ErrorIs(t, s.PutTest(context.Background(), bad), exam.ErrInvalid)
}

func TestPutTestRejectsLongID(t *testing.T) {
	s := exam.NewInMemoryStore()
	assert.NoError(t, s.PutTest(context.Background(), sampleTest(strings.Repeat("a", exam.MaxTestIDLen))))
	assert.ErrorIs(t, s.PutTest(context.Background(), sampleTest(strings.Repeat("a", exam.MaxTestIDLen+1))), exam.ErrInvalid)
}

func TestRegistrationVersions(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			require.NoError(t, s.PutTest(ctx, sampleTest("1")))

			r := &exam.Registration{TestID: "1", UserID: "42", Name: "Ada", Surname: "L", RegisteredAt: base}
			require.NoError(t, s.SaveRegistrations(ctx, r))
			assert.Equal(t, int64(1), r.Version)

			dup := &exam.Registration{TestID: "1", UserID: "42", Name: "Ada", Surname: "L", RegisteredAt: base}
			require.ErrorIs(t, s.SaveRegistrations(ctx, dup), exam.ErrConflict)

			// two readers of the same version: the second write loses
			a, err := s.GetRegistration(ctx, "1", "42")
			require.NoError(t, err)
			b, err := s.GetRegistration(ctx, "1", "42")
			require.NoError(t, err)

			a.Submit(answers.Normalize("abc"), base.Add(time.Hour))
			require.NoError(t, s.SaveRegistrations(ctx, &a))
			assert.Equal(t, int64(2), a.Version)

			b.Score = "0/3"
			err = s.SaveRegistrations(ctx, &b)
			require.True(t, errors.Is(err, exam.ErrConflict), "got %v", err)

			got, err := s.GetRegistration(ctx, "1", "42")
			require.NoError(t, err)
			assert.Equal(t, "abc", got.Answers)
			require.NotNil(t, got.SubmittedAt)
			assert.True(t, got.SubmittedAt.Equal(base.Add(time.Hour)))
			assert.Empty(t, got.Score)
		})
	}
}

func TestSaveRegistrationsAllOrNothing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			require.NoError(t, s.PutTest(ctx, sampleTest("1")))

			r1 := &exam.Registration{TestID: "1", UserID: "1", Name: "A", Surname: "A", RegisteredAt: base}
			r2 := &exam.Registration{TestID: "1", UserID: "2", Name: "B", Surname: "B", RegisteredAt: base.Add(time.Minute)}
			require.NoError(t, s.SaveRegistrations(ctx, r1, r2))

			stale := *r2
			stale.Version = 99
			fresh := *r1
			k := 2
			fresh.RawCorrect = &k
			require.ErrorIs(t, s.SaveRegistrations(ctx, &fresh, &stale), exam.ErrConflict)
			assert.Equal(t, int64(1), fresh.Version, "versions are not advanced on conflict")

			got, err := s.GetRegistration(ctx, "1", "1")
			require.NoError(t, err)
			assert.Nil(t, got.RawCorrect)

			list, err := s.ListRegistrations(ctx, "1")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "1", list[0].UserID)

			counts, err := s.RegistrationCounts(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"1": 2}, counts)
		})
	}
}

func TestRegistrationValidate(t *testing.T) {
	at := base
	tests := []struct {
		name string
		reg  exam.Registration
		ok   bool
	}{
		{"fresh", exam.Registration{TestID: "1", UserID: "2", RegisteredAt: base}, true},
		{"submitted", exam.Registration{TestID: "1", UserID: "2", RegisteredAt: base, Answers: "abc", SubmittedAt: &at}, true},
		{"answers without time", exam.Registration{TestID: "1", UserID: "2", RegisteredAt: base, Answers: "abc"}, false},
		{"unnormalized", exam.Registration{TestID: "1", UserID: "2", RegisteredAt: base, Answers: "1A", SubmittedAt: &at}, false},
		{"no ids", exam.Registration{RegisteredAt: base}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, exam.ErrInvalid)
			}
		})
	}
}

func TestParseTime(t *testing.T) {
	got, err := exam.ParseTime(" 2025-02-15 23:59:59 ", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-15 23:59:59", exam.FormatTime(got))

	for _, bad := range []string{"2025-02-15", "15.02.2025 23:59", "2025-2-15 23:59:59", "tomorrow"} {
		_, err := exam.ParseTime(bad, time.UTC)
		assert.ErrorIs(t, err, exam.ErrInvalid, bad)
	}
}

func TestTestOpenAt(t *testing.T) {
	tt := sampleTest("1")
	assert.True(t, tt.OpenAt(base))
	assert.False(t, tt.OpenAt(tt.Deadline), "deadline itself is closed")
	assert.False(t, tt.OpenAt(tt.Deadline.Add(time.Second)))
}
