package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-testbot/internal/session"
)

func stores(t *testing.T) (map[string]session.Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return map[string]session.Store{
		"memory": session.NewMemoryStore(0),
		"redis":  session.NewRedisStore(client, time.Minute),
	}, mr
}

func TestStoreRoundTrip(t *testing.T) {
	all, _ := stores(t)
	for name, st := range all {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Get(ctx, "u1")
			assert.ErrorIs(t, err, session.ErrNotFound)

			empty, err := session.Load(ctx, st, "u1")
			require.NoError(t, err)
			assert.Equal(t, session.StepNone, empty.Step)
			assert.Equal(t, "u1", empty.UserID)

			deadline := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, st.Put(ctx, session.Session{
				UserID: "u1",
				Step:   session.StepAdminCheckTime,
				Draft:  &session.Draft{TestID: "7", AnswerKey: "abc", Deadline: deadline},
			}))
			got, err := st.Get(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, session.StepAdminCheckTime, got.Step)
			require.NotNil(t, got.Draft)
			assert.Equal(t, "7", got.Draft.TestID)
			assert.True(t, got.Draft.Deadline.Equal(deadline))
			assert.False(t, got.UpdatedAt.IsZero())

			// sessions are replaced wholesale
			require.NoError(t, st.Put(ctx, session.Session{UserID: "u1", Step: session.StepAwaitingAnswer, TestID: "7"}))
			got, _ = st.Get(ctx, "u1")
			assert.Nil(t, got.Draft)
			assert.Equal(t, "7", got.TestID)

			require.NoError(t, st.Delete(ctx, "u1"))
			_, err = st.Get(ctx, "u1")
			assert.ErrorIs(t, err, session.ErrNotFound)
			assert.NoError(t, st.Delete(ctx, "u1"))
		})
	}
}

func TestRedisStoreExpires(t *testing.T) {
	all, mr := stores(t)
	st := all["redis"]
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, session.Session{UserID: "u2", Step: session.StepAwaitingName}))
	assert.True(t, mr.Exists("testbot:session:u2"))

	mr.FastForward(2 * time.Minute)
	_, err := st.Get(ctx, "u2")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStoreCopies(t *testing.T) {
	st := session.NewMemoryStore(time.Hour)
	ctx := context.Background()
	d := &session.Draft{TestID: "1"}
	require.NoError(t, st.Put(ctx, session.Session{UserID: "u", Step: session.StepAdminAnswerKey, Draft: d}))
	d.TestID = "mutated"
	got, _ := st.Get(ctx, "u")
	assert.Equal(t, "1", got.Draft.TestID)
}

func TestStepAdmin(t *testing.T) {
	assert.True(t, session.StepAdminDeadline.Admin())
	assert.False(t, session.StepAwaitingAnswer.Admin())
	assert.False(t, session.StepNone.Admin())
}
