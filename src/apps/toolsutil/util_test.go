package toolsutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path    string
		content []byte
		want    string
	}{
		{"main.go", nil, "go"},
		{"/src/app.py", nil, "python"},
		{"config.json", nil, "json"},
		{"", nil, "text"},
	}
	for _, tt := range tests {
		if got := DetectLanguage(tt.path, tt.content); got != tt.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestIsTextFile(t *testing.T) {
	assert.True(t, IsTextFile(nil))
	assert.True(t, IsTextFile([]byte("hello\nworld\t!")))
	assert.True(t, IsTextFile([]byte("héllo wörld")))
	assert.False(t, IsTextFile([]byte{'a', 0, 'b'}))
	assert.False(t, IsTextFile([]byte{0xff, 0xfe, 0xfd}))
}

func TestValidateFileSize(t *testing.T) {
	assert.NoError(t, ValidateFileSize(10, 10))
	assert.NoError(t, ValidateFileSize(1<<40, 0))
	err := ValidateFileSize(2048, 1024)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Contains(t, err.Error(), "2.0 KB")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "3.0 MB", FormatBytes(3*1024*1024))
}
