package executor

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elee1766/chatmux/src/aisdk"
	"github.com/elee1766/chatmux/src/storage"
)

// Transcript is a session record with its complete history.
type Transcript struct {
	Session *storage.Session `json:"session"`
	Turns   []aisdk.Turn     `json:"turns"`
}

// WriteText renders the transcript for reading. Inactive turns are kept and
// marked.
func (t *Transcript) WriteText(w io.Writer) error {
	var b strings.Builder
	if t.Session != nil {
		fmt.Fprintf(&b, "session %s (app %s, %s/%s)\n", t.Session.ID, t.Session.App, t.Session.Vendor, t.Session.Model)
		if t.Session.Title != "" {
			fmt.Fprintf(&b, "title: %s\n", t.Session.Title)
		}
		b.WriteByte('\n')
	}

	for i, turn := range t.Turns {
		label := string(turn.Role)
		if turn.Role == aisdk.RoleTool {
			label = fmt.Sprintf("tool %s#%s", turn.Name, turn.ToolCallID)
		}
		fmt.Fprintf(&b, "#%d [%s]", i, label)
		if !turn.Active {
			b.WriteString(" (inactive)")
		}
		if !turn.CreatedAt.IsZero() {
			fmt.Fprintf(&b, " %s", turn.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		b.WriteByte('\n')

		if turn.Text != "" {
			b.WriteString(turn.Text)
			b.WriteByte('\n')
		}
		for _, img := range turn.Images {
			fmt.Fprintf(&b, "  [image %s]\n", img.Summary())
		}
		for _, call := range turn.ToolCalls {
			fmt.Fprintf(&b, "  -> %s(%s) #%s\n", call.Name, call.ArgumentsOrEmpty(), call.ID)
		}
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// renderPreview turns a tool output into the text shown in events.
func renderPreview(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case json.RawMessage:
		return string(x)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
