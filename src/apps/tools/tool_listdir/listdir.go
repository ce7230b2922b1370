package tool_listdir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/apps/toolsutil"
	"github.com/elee1766/chatmux/src/config"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "list_directory"

const listDirectoryPrompt = `Lists files and directories in a given path. The path may be absolute or relative to the tool root. Set recursive to walk subdirectories; denied paths are skipped.`

// maxEntries bounds a recursive listing
const maxEntries = 1000

var errTruncated = errors.New("listing truncated")

// ListDirectoryInput represents the input for listing a directory
type ListDirectoryInput struct {
	Path      string `json:"path" required:"true" description:"The directory path to list"`
	Recursive bool   `json:"recursive,omitempty" description:"Whether to list recursively"`
}

// FileInfo represents information about a file or directory
type FileInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	IsDir    bool   `json:"is_dir"`
	Size     int64  `json:"size"`
	ModTime  string `json:"mod_time"`
	Language string `json:"language,omitempty"`
}

// ListDirectoryOutput represents the output of listing a directory
type ListDirectoryOutput struct {
	Path      string     `json:"path"`
	Files     []FileInfo `json:"files"`
	Count     int        `json:"count"`
	Truncated bool       `json:"truncated,omitempty"`
}

// Tool returns the list_directory tool
func Tool(fsys afero.Fs, perms *config.PermissionChecker) (agent.Tool, error) {
	return agent.NewGenericTool(Name, listDirectoryPrompt, makeListDirectoryHandler(fsys, perms))
}

func makeListDirectoryHandler(fsys afero.Fs, perms *config.PermissionChecker) func(context.Context, ListDirectoryInput) (ListDirectoryOutput, error) {
	return func(ctx context.Context, input ListDirectoryInput) (ListDirectoryOutput, error) {
		logger := toolsutil.GetLogger()

		if err := perms.CheckFileReadPermission(input.Path).Err(); err != nil {
			logger.Warn("listing rejected", "path", input.Path, "error", err)
			return ListDirectoryOutput{}, err
		}
		root, err := perms.ResolvePath(input.Path)
		if err != nil {
			return ListDirectoryOutput{}, err
		}

		out := ListDirectoryOutput{Path: input.Path, Files: []FileInfo{}}
		add := func(path string, info os.FileInfo) {
			fi := FileInfo{
				Name:    info.Name(),
				Path:    path,
				IsDir:   info.IsDir(),
				Size:    info.Size(),
				ModTime: info.ModTime().Format(time.RFC3339),
			}
			if !info.IsDir() {
				fi.Language = toolsutil.DetectLanguage(path, nil)
			}
			out.Files = append(out.Files, fi)
		}

		if input.Recursive {
			err = afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				if path == root {
					return nil
				}
				if !perms.CheckFileReadPermission(path).Allowed {
					if info.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if len(out.Files) >= maxEntries {
					out.Truncated = true
					return errTruncated
				}
				add(path, info)
				return nil
			})
			if err != nil && !errors.Is(err, errTruncated) {
				return ListDirectoryOutput{}, fmt.Errorf("failed to walk directory: %w", err)
			}
		} else {
			entries, err := afero.ReadDir(fsys, root)
			if err != nil {
				return ListDirectoryOutput{}, fmt.Errorf("failed to read directory: %w", err)
			}
			for _, info := range entries {
				add(filepath.Join(root, info.Name()), info)
			}
		}

		out.Count = len(out.Files)
		logger.Debug("directory listed", "path", root, "count", out.Count)
		return out, nil
	}
}
