package stream

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
)

// Lines frames newline-delimited units such as NDJSON. Blank lines are skipped
// and a trailing line without a newline is only returned at end of input.
type Lines struct{}

func (Lines) TryParseUnit(buf []byte, atEOF bool) ([]byte, []byte, error) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		if atEOF && len(bytes.TrimSpace(buf)) > 0 {
			return bytes.TrimSpace(buf), nil, nil
		}
		return nil, buf, ErrIncomplete
	}
	line := bytes.TrimSpace(buf[:i])
	if len(line) == 0 {
		return nil, buf[i+1:], nil
	}
	return line, buf[i+1:], nil
}

// SSE frames server-sent events. A unit is the raw block of field lines making
// up one event, terminated by a blank line. Blocks holding only comments are
// consumed without producing a unit. Use ParseEvent to read the fields.
type SSE struct{}

func (SSE) TryParseUnit(buf []byte, atEOF bool) ([]byte, []byte, error) {
	pos := 0
	for {
		i := bytes.IndexByte(buf[pos:], '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimRight(buf[pos:pos+i], "\r")
		next := pos + i + 1
		if len(line) == 0 {
			block := buf[:pos]
			if ev := ParseEvent(block); ev.Empty() {
				return nil, buf[next:], nil
			}
			return bytes.TrimRight(block, "\r\n"), buf[next:], nil
		}
		pos = next
	}

	if atEOF && len(bytes.TrimSpace(buf)) > 0 {
		if ev := ParseEvent(buf); ev.Empty() {
			return nil, nil, nil
		}
		return bytes.TrimRight(buf, "\r\n"), nil, nil
	}
	return nil, buf, ErrIncomplete
}

// Event holds the fields of one server-sent event.
type Event struct {
	Name string
	Data string
	ID   string
}

// Empty reports whether the block carried no event name and no data.
func (e Event) Empty() bool {
	return e.Name == "" && e.Data == ""
}

// ParseEvent reads the fields of a server-sent event block. Multiple data lines
// are joined with newlines, comment lines are ignored.
func ParseEvent(block []byte) Event {
	var ev Event
	var data [][]byte
	for _, line := range bytes.Split(block, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			ev.Name = string(value)
		case "data":
			data = append(data, value)
		case "id":
			ev.ID = string(value)
		}
	}
	ev.Data = string(bytes.Join(data, []byte("\n")))
	return ev
}

// JSONObjects frames a sequence of JSON objects that may be concatenated,
// whitespace separated, or wrapped in a JSON array. Object boundaries are found
// with a brace-balanced scan that honors strings and escapes.
type JSONObjects struct{}

func (JSONObjects) TryParseUnit(buf []byte, atEOF bool) ([]byte, []byte, error) {
	start := 0
	for start < len(buf) && isSeparator(buf[start]) {
		start++
	}
	if start == len(buf) {
		if start == 0 {
			return nil, buf, ErrIncomplete
		}
		return nil, buf[start:], nil
	}
	if buf[start] != '{' {
		return nil, nil, fmt.Errorf("unexpected %q at offset %d, want object", buf[start], start)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buf); i++ {
		c := buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				unit := buf[start : i+1]
				if !gjson.ValidBytes(unit) {
					return nil, nil, fmt.Errorf("invalid JSON object at offset %d", start)
				}
				return unit, buf[i+1:], nil
			}
		}
	}
	return nil, buf, ErrIncomplete
}

func isSeparator(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ',', '[', ']':
		return true
	}
	return false
}
