package tool_fileinfo

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"time"

	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/apps/toolsutil"
	"github.com/elee1766/chatmux/src/config"
	"github.com/spf13/afero"
)

// Tool name constant
const Name = "get_file_info"

const getFileInfoPrompt = `Get metadata about a file or directory: size, permissions, modification time and type. The contents are not read.`

// GetFileInfoInput represents the parameters for get_file_info
type GetFileInfoInput struct {
	Path string `json:"path" required:"true" description:"The file or directory path"`
}

// GetFileInfoOutput represents the response from get_file_info
type GetFileInfoOutput struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"size_human"`
	IsDir       bool   `json:"is_dir"`
	Mode        string `json:"mode"`
	Permissions string `json:"permissions"`
	ModTime     string `json:"mod_time"`

	// only set for directories
	FileCount *int `json:"file_count,omitempty"`
	DirCount  *int `json:"dir_count,omitempty"`

	Extension string `json:"extension,omitempty"`
	Language  string `json:"language,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
}

// Tool returns the get_file_info tool
func Tool(fsys afero.Fs, perms *config.PermissionChecker) (agent.Tool, error) {
	return agent.NewGenericTool(Name, getFileInfoPrompt, makeGetFileInfoHandler(fsys, perms))
}

func makeGetFileInfoHandler(fsys afero.Fs, perms *config.PermissionChecker) func(context.Context, GetFileInfoInput) (GetFileInfoOutput, error) {
	return func(ctx context.Context, input GetFileInfoInput) (GetFileInfoOutput, error) {
		logger := toolsutil.GetLogger()

		if err := perms.CheckFileReadPermission(input.Path).Err(); err != nil {
			logger.Warn("file info rejected", "path", input.Path, "error", err)
			return GetFileInfoOutput{}, err
		}
		path, err := perms.ResolvePath(input.Path)
		if err != nil {
			return GetFileInfoOutput{}, err
		}
		if err := ctx.Err(); err != nil {
			return GetFileInfoOutput{}, err
		}

		info, err := fsys.Stat(path)
		if err != nil {
			return GetFileInfoOutput{}, fmt.Errorf("failed to get file info: %w", err)
		}

		out := GetFileInfoOutput{
			Path:        path,
			Name:        info.Name(),
			Size:        info.Size(),
			SizeHuman:   toolsutil.FormatBytes(info.Size()),
			IsDir:       info.IsDir(),
			Mode:        info.Mode().String(),
			Permissions: fmt.Sprintf("%o", info.Mode().Perm()),
			ModTime:     info.ModTime().Format(time.RFC3339),
		}

		if info.IsDir() {
			entries, err := afero.ReadDir(fsys, path)
			if err == nil {
				files, dirs := 0, 0
				for _, e := range entries {
					if e.IsDir() {
						dirs++
					} else {
						files++
					}
				}
				out.FileCount = &files
				out.DirCount = &dirs
			}
		} else {
			out.Extension = filepath.Ext(path)
			out.Language = toolsutil.DetectLanguage(path, nil)
			if out.Extension != "" {
				out.MimeType = mime.TypeByExtension(out.Extension)
			}
		}

		logger.Debug("file info retrieved", "path", path, "size", info.Size(), "is_dir", info.IsDir())
		return out, nil
	}
}
