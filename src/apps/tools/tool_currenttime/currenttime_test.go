package tool_currenttime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentTime(t *testing.T) {
	fixed := time.Date(2024, time.March, 1, 12, 30, 0, 0, time.UTC)
	tool, err := Tool(func() time.Time { return fixed })
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	got := out.(CurrentTimeOutput)
	assert.Equal(t, "2024-03-01T12:30:00Z", got.Time)
	assert.Equal(t, "UTC", got.Timezone)
	assert.Equal(t, "Friday", got.Weekday)
	assert.Equal(t, fixed.Unix(), got.Unix)

	_, err = tool.Execute(context.Background(), []byte(`{"timezone":"Mars/Olympus"}`))
	assert.ErrorContains(t, err, "unknown timezone")
}
