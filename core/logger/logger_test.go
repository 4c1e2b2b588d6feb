package logger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildRID(t *testing.T) {
	assert.Equal(t, "10:200:3000", BuildRID(10, 200, 3000))
	assert.Equal(t, "0:0:0", BuildRID(0, 0, 0))
	assert.Equal(t, "1:-42:7", BuildRID(1, -42, 7))
}

func TestContextRoundTrips(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RIDFrom(ctx))
	assert.Empty(t, HandlerFrom(ctx))
	assert.Zero(t, UpdateIDFrom(ctx))

	ctx = WithRID(ctx, "1:2:3")
	ctx = WithUpdateMeta(ctx, 1, 3, 2)
	ctx = WithHandler(ctx, "callback.pick")

	assert.Equal(t, "1:2:3", RIDFrom(ctx))
	assert.Equal(t, 1, UpdateIDFrom(ctx))
	assert.Equal(t, int64(3), UserIDFrom(ctx))
	assert.Equal(t, int64(2), ChatIDFrom(ctx))
	assert.Equal(t, "callback.pick", HandlerFrom(ctx))
}

func TestContextAccessorsTolerateNil(t *testing.T) {
	assert.Empty(t, RIDFrom(nil))     //nolint:staticcheck
	assert.Nil(t, FromContext(nil))   //nolint:staticcheck
	assert.Empty(t, HandlerFrom(nil)) //nolint:staticcheck
}

func TestSanitizeLimit(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"plain", 32, "plain"},
		{"line\nbreak\tand\rreturn", 32, "line break and return"},
		{"bell\x07gone", 32, "bellgone"},
		{"truncate me", 8, "truncate…"},
		{"no limit applied", 0, "no limit applied"},
		{"добрый день", 6, "добрый…"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeLimit(tc.in, tc.max), "input %q max %d", tc.in, tc.max)
	}
}

func TestRoundMS(t *testing.T) {
	assert.Equal(t, 12*time.Millisecond, RoundMS(12_400_000*time.Nanosecond))
	assert.Equal(t, 13*time.Millisecond, RoundMS(12_600_000*time.Nanosecond))
}
