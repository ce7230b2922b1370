package tool_readfile

import (
	"context"
	"fmt"
	"strings"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/apps/toolsutil"
	"github.com/elee1766/chatmux/src/config"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "read_file"

const readFilePrompt = `Reads a text file from the local filesystem.

Usage:
- path may be absolute or relative to the tool root
- Set line_numbers to true to prefix each line with its number ("1: line content")
- Use offset and limit to read a window of lines from large files
- Binary files are reported without their contents`

// ReadFileInput represents the parameters for read_file
type ReadFileInput struct {
	Path        string `json:"path" required:"true" description:"The file path to read (absolute or relative to the tool root)"`
	LineNumbers bool   `json:"line_numbers,omitempty" description:"Include line numbers in output (format: '1: line content')"`
	Offset      int    `json:"offset,omitempty" description:"First line to return, counting from 1"`
	Limit       int    `json:"limit,omitempty" description:"Maximum number of lines to return"`
}

// ReadFileOutput represents the response from read_file
type ReadFileOutput struct {
	Content    string `json:"content" description:"The file contents"`
	Path       string `json:"path" description:"The file path that was read"`
	Size       int64  `json:"size" description:"File size in bytes"`
	Language   string `json:"language,omitempty" description:"Detected programming language"`
	IsText     bool   `json:"is_text" description:"Whether the file is a text file"`
	TotalLines int    `json:"total_lines,omitempty" description:"Number of lines in the file"`
}

// Tool returns the read_file tool. Reads go through fs after the permission
// checker approves the resolved path.
func Tool(fs afero.Fs, perms *config.PermissionChecker, maxSize int64) (agent.Tool, error) {
	return agent.NewGenericTool(Name, readFilePrompt, makeReadFileHandler(fs, perms, maxSize))
}

func makeReadFileHandler(fs afero.Fs, perms *config.PermissionChecker, maxSize int64) func(ctx context.Context, input ReadFileInput) (ReadFileOutput, error) {
	return func(ctx context.Context, input ReadFileInput) (ReadFileOutput, error) {
		logger := toolsutil.GetLogger()
		if err := ctx.Err(); err != nil {
			return ReadFileOutput{}, fmt.Errorf("operation cancelled: %w", err)
		}

		if err := perms.CheckFileReadPermission(input.Path).Err(); err != nil {
			logger.Warn("read rejected", "path", input.Path, "error", err)
			return ReadFileOutput{}, err
		}
		path, err := perms.ResolvePath(input.Path)
		if err != nil {
			return ReadFileOutput{}, err
		}

		info, err := fs.Stat(path)
		if err != nil {
			return ReadFileOutput{}, fmt.Errorf("file not found: %s", input.Path)
		}
		if info.IsDir() {
			return ReadFileOutput{}, fmt.Errorf("%s is a directory", input.Path)
		}
		if err := toolsutil.ValidateFileSize(info.Size(), maxSize); err != nil {
			logger.Warn("file too large", "path", path, "size", info.Size())
			return ReadFileOutput{}, err
		}

		content, err := afero.ReadFile(fs, path)
		if err != nil {
			return ReadFileOutput{}, fmt.Errorf("failed to read file: %w", err)
		}

		out := ReadFileOutput{
			Path:     input.Path,
			Size:     int64(len(content)),
			Language: toolsutil.DetectLanguage(path, content),
			IsText:   toolsutil.IsTextFile(content),
		}
		if !out.IsText {
			out.Content = fmt.Sprintf("binary file (%s)", toolsutil.FormatBytes(out.Size))
			return out, nil
		}

		lines := strings.Split(string(content), "\n")
		out.TotalLines = len(lines)
		out.Content = formatLines(lines, input.Offset, input.Limit, input.LineNumbers)

		logger.Debug("file read", "path", path, "size", out.Size, "language", out.Language)
		return out, nil
	}
}

// formatLines returns lines[offset-1:offset-1+limit], optionally numbered.
func formatLines(lines []string, offset, limit int, numbered bool) string {
	start := 0
	if offset > 1 {
		start = min(offset-1, len(lines))
	}
	end := len(lines)
	if limit > 0 {
		end = min(start+limit, len(lines))
	}

	if !numbered {
		return strings.Join(lines[start:end], "\n")
	}
	var b strings.Builder
	for i := start; i < end; i++ {
		if i > start {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", i+1, lines[i])
	}
	return b.String()
}
