package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remaining(t *testing.T, ctx context.Context) time.Duration {
	t.Helper()
	deadline, ok := ctx.Deadline()
	require.True(t, ok, "context has no deadline")
	return time.Until(deadline)
}

func TestDefaultContexts(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context) (context.Context, context.CancelFunc)
		want time.Duration
	}{
		{"query", QueryContext, DefaultQueryTimeout},
		{"write", WriteContext, DefaultWriteTimeout},
		{"bulk", BulkContext, DefaultBulkTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.fn(context.Background())
			defer cancel()

			left := remaining(t, ctx)
			assert.LessOrEqual(t, left, tt.want)
			assert.Greater(t, left, tt.want-time.Second)
		})
	}
}

func TestTimeoutsOverride(t *testing.T) {
	to := Timeouts{Write: 250 * time.Millisecond}

	ctx, cancel := to.WriteContext(context.Background())
	defer cancel()
	assert.LessOrEqual(t, remaining(t, ctx), 250*time.Millisecond)

	qctx, qcancel := to.QueryContext(context.Background())
	defer qcancel()
	assert.Greater(t, remaining(t, qctx), DefaultQueryTimeout-time.Second)
}

func TestParentDeadlineWins(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	ctx, wcancel := WriteContext(parent)
	defer wcancel()
	assert.LessOrEqual(t, remaining(t, ctx), 50*time.Millisecond)
}
