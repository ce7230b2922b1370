package tool_sysinfo

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemInfo(t *testing.T) {
	tool, err := Tool()
	require.NoError(t, err)
	assert.Equal(t, Name, tool.GetName())

	out, err := tool.Execute(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	info := out.(SystemInfoOutput)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Positive(t, info.CPUs)
}
