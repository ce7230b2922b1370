package engine

import "github.com/elee1766/chatmux/src/aisdk"

// BuildWindow selects the turns sent to the vendor: the first turn plus the
// last contextSize turns after it. Selected turns are marked active and all
// others inactive, in place. A contextSize of zero or less keeps only the first
// turn.
//
// A window never starts with a tool turn: when the cut falls inside a tool
// exchange it moves back to the assistant turn that issued the calls.
func BuildWindow(turns []aisdk.Turn, contextSize int) []aisdk.Turn {
	if len(turns) == 0 {
		return nil
	}
	if len(turns) == 1 {
		turns[0].Active = true
		return []aisdk.Turn{turns[0]}
	}

	start := len(turns)
	if contextSize > 0 {
		start = max(len(turns)-contextSize, 1)
	}
	for start > 1 && start < len(turns) && turns[start].Role == aisdk.RoleTool {
		start--
	}

	for i := range turns {
		turns[i].Active = i == 0 || i >= start
	}
	out := make([]aisdk.Turn, 0, 1+len(turns)-start)
	out = append(out, turns[0])
	return append(out, turns[start:]...)
}
