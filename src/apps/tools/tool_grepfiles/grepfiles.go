package tool_grepfiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/apps/toolsutil"
	"github.com/elee1766/chatmux/src/config"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "grep_files"

const grepFilesPrompt = `Search file contents under a directory with a regular expression (RE2 syntax). Filter file names with a glob such as "*.go". Binary files, oversized files and denied paths are skipped.`

const (
	defaultMaxResults = 100
	maxMaxResults     = 1000
)

var errLimit = errors.New("result limit reached")

// GrepFilesInput represents the parameters for grep_files
type GrepFilesInput struct {
	Pattern         string `json:"pattern" required:"true" description:"The regular expression to search for"`
	Path            string `json:"path,omitempty" description:"The directory to search in (defaults to the tool root)"`
	FilePattern     string `json:"file_pattern,omitempty" description:"Glob matched against file names"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty" description:"Ignore case when matching"`
	ContextLines    int    `json:"context_lines,omitempty" description:"Lines of context around each match"`
	MaxResults      int    `json:"max_results,omitempty" description:"Maximum number of matches (default 100)"`
}

// GrepMatch represents a single grep match
type GrepMatch struct {
	File    string   `json:"file"`
	Line    int      `json:"line"`
	Content string   `json:"content"`
	Context []string `json:"context,omitempty"`
}

// GrepFilesOutput represents the response from grep_files
type GrepFilesOutput struct {
	Pattern   string      `json:"pattern"`
	Path      string      `json:"path"`
	Matches   []GrepMatch `json:"matches"`
	Count     int         `json:"count"`
	Truncated bool        `json:"truncated,omitempty"`
}

// Tool returns the grep_files tool. Files larger than maxFileSize are
// skipped; a non-positive size disables the check.
func Tool(fsys afero.Fs, perms *config.PermissionChecker, maxFileSize int64) (agent.Tool, error) {
	return agent.NewGenericTool(Name, grepFilesPrompt, makeGrepFilesHandler(fsys, perms, maxFileSize))
}

func makeGrepFilesHandler(fsys afero.Fs, perms *config.PermissionChecker, maxFileSize int64) func(context.Context, GrepFilesInput) (GrepFilesOutput, error) {
	return func(ctx context.Context, input GrepFilesInput) (GrepFilesOutput, error) {
		logger := toolsutil.GetLogger()

		if input.Path == "" {
			input.Path = "."
		}
		limit := input.MaxResults
		if limit <= 0 {
			limit = defaultMaxResults
		}
		limit = min(limit, maxMaxResults)

		if err := perms.CheckFileReadPermission(input.Path).Err(); err != nil {
			logger.Warn("grep rejected", "path", input.Path, "error", err)
			return GrepFilesOutput{}, err
		}
		root, err := perms.ResolvePath(input.Path)
		if err != nil {
			return GrepFilesOutput{}, err
		}

		expr := input.Pattern
		if input.CaseInsensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return GrepFilesOutput{}, fmt.Errorf("invalid pattern: %w", err)
		}
		if input.FilePattern != "" {
			if _, err := filepath.Match(input.FilePattern, ""); err != nil {
				return GrepFilesOutput{}, fmt.Errorf("invalid file pattern: %w", err)
			}
		}

		out := GrepFilesOutput{Pattern: input.Pattern, Path: root, Matches: []GrepMatch{}}
		err = afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !perms.CheckFileReadPermission(path).Allowed {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				return nil
			}
			if input.FilePattern != "" {
				if ok, _ := filepath.Match(input.FilePattern, info.Name()); !ok {
					return nil
				}
			}
			if toolsutil.ValidateFileSize(info.Size(), maxFileSize) != nil {
				return nil
			}
			content, err := afero.ReadFile(fsys, path)
			if err != nil || !toolsutil.IsTextFile(content) {
				return nil
			}

			lines := strings.Split(string(content), "\n")
			for i, line := range lines {
				if !re.MatchString(line) {
					continue
				}
				if len(out.Matches) >= limit {
					out.Truncated = true
					return errLimit
				}
				m := GrepMatch{File: path, Line: i + 1, Content: line}
				if input.ContextLines > 0 {
					m.Context = surrounding(lines, i, input.ContextLines)
				}
				out.Matches = append(out.Matches, m)
			}
			return nil
		})
		if err != nil && !errors.Is(err, errLimit) {
			return GrepFilesOutput{}, fmt.Errorf("grep failed: %w", err)
		}

		out.Count = len(out.Matches)
		logger.Debug("grep completed", "pattern", input.Pattern, "path", root, "matches", out.Count, "truncated", out.Truncated)
		return out, nil
	}
}

func surrounding(lines []string, index, n int) []string {
	start := max(index-n, 0)
	end := min(index+n+1, len(lines))
	return lines[start:end]
}
