// Package stream turns a vendor's incremental response bytes into normalized
// protocol events. A Framing finds unit boundaries in the buffered bytes and a
// Translator maps each unit to events; the Decoder owns the buffer so units are
// reassembled identically however the transport chunks them.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/elee1766/chatmux/src/aisdk"
)

// ErrIncomplete is returned by a Framing when the buffer does not yet hold a
// whole unit.
var ErrIncomplete = errors.New("incomplete unit")

// Framing splits buffered bytes into units.
//
// TryParseUnit returns the first unit in buf and the bytes following it. A nil
// unit with a nil error means bytes were consumed without producing a unit
// (blank lines, comments, separators). ErrIncomplete means more bytes are
// needed. atEOF is set once the transport has no more bytes to deliver. Any
// other error marks the buffer as structurally invalid.
type Framing interface {
	TryParseUnit(buf []byte, atEOF bool) (unit, rest []byte, err error)
}

// Translator maps one unit to zero or more events. Translators are created per
// decode pass and may keep state across units, such as tool call arguments
// arriving in pieces. A terminal event ends the pass.
type Translator interface {
	Translate(unit []byte) ([]aisdk.Event, error)
}

// TranslatorFunc adapts a stateless function to Translator.
type TranslatorFunc func(unit []byte) ([]aisdk.Event, error)

func (f TranslatorFunc) Translate(unit []byte) ([]aisdk.Event, error) {
	return f(unit)
}

const readSize = 4096

// Decoder buffers incoming chunks and emits the events of every complete unit.
type Decoder struct {
	framing    Framing
	translator Translator
	buf        []byte
	terminal   *aisdk.Event
}

// NewDecoder creates a decoder for a single pass.
func NewDecoder(framing Framing, translator Translator) *Decoder {
	return &Decoder{framing: framing, translator: translator}
}

// Terminal returns the event that ended the pass, if any.
func (d *Decoder) Terminal() (aisdk.Event, bool) {
	if d.terminal == nil {
		return aisdk.Event{}, false
	}
	return *d.terminal, true
}

// Buffered returns the number of bytes held but not yet consumed.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Feed appends chunk to the buffer and returns the events of every unit that
// became complete. Once a terminal event was produced further input is ignored.
func (d *Decoder) Feed(chunk []byte) ([]aisdk.Event, error) {
	if d.terminal != nil {
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)
	return d.drain(false)
}

// Finish flushes the buffer at end of input. A stream that ends without a
// terminal unit yields Done with no finish reason, unless unparseable bytes
// remain.
func (d *Decoder) Finish() ([]aisdk.Event, error) {
	if d.terminal != nil {
		return nil, nil
	}
	events, err := d.drain(true)
	if err != nil || d.terminal != nil {
		return events, err
	}
	if len(bytes.TrimSpace(d.buf)) > 0 {
		return events, d.fail(fmt.Errorf("%w: %d trailing bytes at end of stream", aisdk.ErrDecode, len(d.buf)))
	}
	done := aisdk.Done(aisdk.FinishNone)
	d.terminal = &done
	return append(events, done), nil
}

func (d *Decoder) drain(atEOF bool) ([]aisdk.Event, error) {
	var out []aisdk.Event
	for len(d.buf) > 0 {
		unit, rest, err := d.framing.TryParseUnit(d.buf, atEOF)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			return out, d.fail(fmt.Errorf("%w: %w", aisdk.ErrDecode, err))
		}
		if len(rest) >= len(d.buf) {
			return out, d.fail(fmt.Errorf("%w: framing consumed no input", aisdk.ErrDecode))
		}
		if unit != nil {
			unit = bytes.Clone(unit)
		}
		d.buf = append(d.buf[:0], rest...)
		if unit == nil {
			continue
		}

		events, err := d.translator.Translate(unit)
		if err != nil {
			if !errors.Is(err, aisdk.ErrDecode) {
				err = fmt.Errorf("%w: %w", aisdk.ErrDecode, err)
			}
			return out, d.fail(err)
		}
		for _, ev := range events {
			out = append(out, ev)
			if ev.IsTerminal() {
				d.terminal = &ev
				return out, nil
			}
		}
	}
	return out, nil
}

func (d *Decoder) fail(err error) error {
	ev := aisdk.ErrorEvent(aisdk.NewError(aisdk.KindDecode, err))
	d.terminal = &ev
	return err
}

// Decode reads r until a terminal event, passing every non-terminal event to
// emit in order. It returns the terminal event. Error events sent by the vendor
// are returned together with their error. Read failures are returned as is,
// with a zero event, so the caller can classify them.
func (d *Decoder) Decode(ctx context.Context, r io.Reader, emit func(aisdk.Event) error) (aisdk.Event, error) {
	chunk := make([]byte, readSize)
	for {
		if err := ctx.Err(); err != nil {
			return aisdk.Event{}, err
		}

		n, readErr := r.Read(chunk)
		var (
			events []aisdk.Event
			err    error
		)
		if n > 0 {
			events, err = d.Feed(chunk[:n])
		}
		if err == nil && d.terminal == nil && errors.Is(readErr, io.EOF) {
			var tail []aisdk.Event
			tail, err = d.Finish()
			events = append(events, tail...)
		}

		for _, ev := range events {
			if ev.IsTerminal() {
				break
			}
			if emitErr := emit(ev); emitErr != nil {
				return aisdk.Event{}, emitErr
			}
		}
		if err != nil {
			return *d.terminal, err
		}
		if d.terminal != nil {
			if d.terminal.Type == aisdk.EventError {
				return *d.terminal, d.terminal.Err
			}
			return *d.terminal, nil
		}
		if readErr != nil {
			return aisdk.Event{}, readErr
		}
	}
}
