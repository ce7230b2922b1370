// Package toolsutil holds helpers shared by the built-in tools.
package toolsutil

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Package-level logger for tools
var logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
	Level: slog.LevelError,
}))

// SetLogger allows setting a custom logger for the tools package
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l.With("component", "tools")
	}
}

// GetLogger returns the package logger
func GetLogger() *slog.Logger {
	return logger
}

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrResponseTooLarge = errors.New("response too large")
	ErrNotTextFile      = errors.New("not a text file")
)

// DetectLanguage names the language of a file from its name, falling back to
// content analysis and then "text".
func DetectLanguage(filePath string, content []byte) string {
	var lexer chroma.Lexer
	if filePath != "" {
		lexer = lexers.Match(filePath)
	}
	if lexer == nil && len(content) > 0 {
		lexer = lexers.Analyse(string(content[:min(len(content), 1024)]))
	}
	if lexer == nil {
		return "text"
	}
	return strings.ToLower(lexer.Config().Name)
}

// ValidateFileSize checks size against limit; a non-positive limit disables the check.
func ValidateFileSize(size, limit int64) error {
	if limit > 0 && size > limit {
		return fmt.Errorf("%w: file size %s exceeds maximum %s", ErrFileTooLarge, FormatBytes(size), FormatBytes(limit))
	}
	return nil
}

// IsTextFile checks if content appears to be text
func IsTextFile(content []byte) bool {
	if len(content) == 0 {
		return true
	}

	sample := content[:min(len(content), 8192)]
	for _, b := range sample {
		if b == 0 {
			return false
		}
	}
	if !utf8.Valid(content) {
		return false
	}

	printable := 0
	for _, r := range string(sample) {
		if r >= 32 || r == '\t' || r == '\n' || r == '\r' {
			printable++
		}
	}
	return float64(printable)/float64(utf8.RuneCount(sample)) > 0.70
}

// FormatBytes formats byte count as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
