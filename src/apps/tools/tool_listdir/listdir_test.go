package tool_listdir

import (
	"context"
	"encoding/json"
	"sort"
	"testing"

	"github.com/elee1766/chatmux/src/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListDirectoryTool(t *testing.T) {
	tests := []struct {
		name          string
		setupFS       func(afero.Fs) error
		args          map[string]any
		expectedError string
		checkResult   func(t *testing.T, result ListDirectoryOutput)
	}{
		{
			name: "list empty directory",
			setupFS: func(fs afero.Fs) error {
				return fs.MkdirAll("/root/empty", 0o755)
			},
			args: map[string]any{"path": "empty"},
			checkResult: func(t *testing.T, result ListDirectoryOutput) {
				assert.Equal(t, "empty", result.Path)
				assert.Equal(t, 0, result.Count)
				assert.Empty(t, result.Files)
			},
		},
		{
			name: "list directory with files",
			setupFS: func(fs afero.Fs) error {
				if err := afero.WriteFile(fs, "/root/test/file1.txt", []byte("content1"), 0o644); err != nil {
					return err
				}
				if err := afero.WriteFile(fs, "/root/test/file2.py", []byte("content2"), 0o644); err != nil {
					return err
				}
				return fs.MkdirAll("/root/test/subdir", 0o755)
			},
			args: map[string]any{"path": "/root/test"},
			checkResult: func(t *testing.T, result ListDirectoryOutput) {
				assert.Equal(t, 3, result.Count)
				byName := map[string]FileInfo{}
				for _, f := range result.Files {
					byName[f.Name] = f
				}
				assert.True(t, byName["subdir"].IsDir)
				assert.Equal(t, "python", byName["file2.py"].Language)
				assert.Equal(t, int64(8), byName["file1.txt"].Size)
				assert.Equal(t, "/root/test/file1.txt", byName["file1.txt"].Path)
			},
		},
		{
			name: "recursive listing skips denied paths",
			setupFS: func(fs afero.Fs) error {
				for _, p := range []string{"/root/tree/a.go", "/root/tree/sub/b.go", "/root/tree/private/c.go"} {
					if err := afero.WriteFile(fs, p, []byte("package x"), 0o644); err != nil {
						return err
					}
				}
				return nil
			},
			args: map[string]any{"path": "tree", "recursive": true},
			checkResult: func(t *testing.T, result ListDirectoryOutput) {
				var paths []string
				for _, f := range result.Files {
					paths = append(paths, f.Path)
				}
				sort.Strings(paths)
				assert.Equal(t, []string{"/root/tree/a.go", "/root/tree/sub", "/root/tree/sub/b.go"}, paths)
			},
		},
		{
			name:          "non-existent directory",
			setupFS:       func(afero.Fs) error { return nil },
			args:          map[string]any{"path": "missing"},
			expectedError: "failed to read directory",
		},
		{
			name:          "outside root",
			setupFS:       func(afero.Fs) error { return nil },
			args:          map[string]any{"path": "/etc"},
			expectedError: "permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, tt.setupFS(fs))

			perms := config.NewPermissionChecker(&config.ToolsConfig{
				FileSystem: config.FileSystemPermissions{
					Root:      "/root",
					DenyPaths: []string{"/root/tree/private"},
				},
			})
			tool, err := Tool(fs, perms)
			require.NoError(t, err)

			raw, err := json.Marshal(tt.args)
			require.NoError(t, err)
			out, err := tool.Execute(context.Background(), raw)
			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}
			require.NoError(t, err)
			tt.checkResult(t, out.(ListDirectoryOutput))
		})
	}
}
