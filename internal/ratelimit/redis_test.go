package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_WithoutClientAllows(t *testing.T) {
	l := NewLimiter(nil, 1, time.Minute, "")
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(context.Background(), "otp:+100")
		require.NoError(t, err)
		require.True(t, ok)
	}

	var nilLimiter *Limiter
	ok, err := nilLimiter.Allow(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLimiter_Key(t *testing.T) {
	require.Equal(t, "rl:otp:+100", NewLimiter(nil, 1, time.Minute, "").Key("otp:+100"))
	require.Equal(t, "bio:a", NewLimiter(nil, 1, time.Minute, "bio").Key("a"))
}

func TestNewRedisClient_EmptyAddr(t *testing.T) {
	c, err := NewRedisClient("", "", 0)
	require.NoError(t, err)
	require.Nil(t, c)
}
