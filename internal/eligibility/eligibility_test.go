package eligibility_test

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-testbot/internal/eligibility"
)

type failing struct{}

func (failing) IsEligible(context.Context, string) (bool, error) {
	return true, errors.New("membership api down")
}

func TestGate(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		checker eligibility.Checker
		user    string
		want    bool
	}{
		{"open", eligibility.Open{}, "anyone", true},
		{"nil checker is open", nil, "anyone", true},
		{"static member", eligibility.NewStatic([]string{" 1 ", "2", ""}), "1", true},
		{"static stranger", eligibility.NewStatic([]string{"1"}), "3", false},
		{"empty id is never static", eligibility.NewStatic([]string{""}), "", false},
		{"errors fail closed", failing{}, "1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eligibility.NewGate(tt.checker).Allow(ctx, tt.user))
		})
	}
}

func TestRedisSet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	_, err := mr.SAdd("channel:members", "42", "43")
	require.NoError(t, err)

	set := eligibility.NewRedisSet(client, "channel:members")
	ok, err := set.IsEligible(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.IsEligible(ctx, "99")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.Close()
	_, err = set.IsEligible(ctx, "42")
	assert.Error(t, err)
	assert.False(t, eligibility.NewGate(set).Allow(ctx, "42"))
}
