package activity_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ricirt/feedrelay/internal/activity"
)

func TestLog_RingEvictsOldest(t *testing.T) {
	l := activity.New(3)
	for i := 1; i <= 5; i++ {
		l.Append(activity.Entry{Message: fmt.Sprintf("m%d", i)})
	}

	assert.Equal(t, 3, l.Len())
	got := l.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "m5", got[0].Message)
	assert.Equal(t, "m3", got[2].Message)

	assert.Len(t, l.Recent(2), 2)
	assert.Len(t, l.Recent(10), 3)
}

func TestLog_Empty(t *testing.T) {
	l := activity.New(0)
	assert.Empty(t, l.Recent(10))
	assert.Equal(t, 0, l.Len())
}

func TestCore_CapturesContext(t *testing.T) {
	l := activity.New(10)
	logger := zap.New(activity.NewCore(l, zapcore.InfoLevel))

	logger.With(zap.String("target", "acct")).Warn("publish failed",
		zap.String("item_id", "101"), zap.Error(errors.New("boom")))

	got := l.Recent(1)
	require.Len(t, got, 1)
	assert.Equal(t, "warn", got[0].Level)
	assert.Equal(t, "publish failed", got[0].Message)
	assert.Equal(t, "acct", got[0].Target)
	assert.Equal(t, "101", got[0].ItemID)
	assert.Equal(t, "boom", got[0].Error)
}

func TestCore_FiltersContextlessInfo(t *testing.T) {
	l := activity.New(10)
	logger := zap.New(activity.NewCore(l, zapcore.InfoLevel))

	logger.Info("http request")
	logger.Debug("noise", zap.String("target", "acct"))
	logger.Info("enqueued", zap.String("target", "acct"))
	logger.Error("store unavailable")

	got := l.Recent(0)
	require.Len(t, got, 2)
	assert.Equal(t, "store unavailable", got[0].Message)
	assert.Equal(t, "enqueued", got[1].Message)
}
