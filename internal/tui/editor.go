package tui

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// EditBuffer is a multi-line text buffer with a single cursor, the
// editing surface behind the clarify view. The line list never goes
// empty (an empty buffer is one empty line) and the cursor always sits
// on a valid position: 0 <= line < len(lines), 0 <= col <= line length
// in runes. Operations clamp at document edges instead of failing.
// There is no undo.
type EditBuffer struct {
	lines []string
	line  int
	col   int
}

// NewEditBuffer splits text on newlines and places the cursor at the end
// of the last line.
func NewEditBuffer(text string) *EditBuffer {
	lines := strings.Split(text, "\n")
	b := &EditBuffer{lines: lines}
	b.line = len(lines) - 1
	b.col = utf8.RuneCountInString(lines[b.line])
	return b
}

// InsertRune inserts a printable rune at the cursor and advances it.
// Control runes (below 0x20) are dropped silently.
func (b *EditBuffer) InsertRune(r rune) {
	if r < 32 {
		return
	}

	line := []rune(b.lines[b.line])
	out := make([]rune, 0, len(line)+1)
	out = append(out, line[:b.col]...)
	out = append(out, r)
	out = append(out, line[b.col:]...)

	b.lines[b.line] = string(out)
	b.col++
}

// Backspace deletes the rune before the cursor. At the start of a line
// it merges the line into the previous one, leaving the cursor at the
// junction. At the very start of the document it does nothing.
func (b *EditBuffer) Backspace() {
	if b.col > 0 {
		line := []rune(b.lines[b.line])
		b.lines[b.line] = string(line[:b.col-1]) + string(line[b.col:])
		b.col--
		return
	}

	if b.line == 0 {
		return
	}

	prev := b.lines[b.line-1]
	b.col = utf8.RuneCountInString(prev)
	b.lines[b.line-1] = prev + b.lines[b.line]
	b.lines = slices.Delete(b.lines, b.line, b.line+1)
	b.line--
}

// Newline splits the current line at the cursor and moves the cursor to
// the start of the new line.
func (b *EditBuffer) Newline() {
	line := []rune(b.lines[b.line])
	b.lines[b.line] = string(line[:b.col])
	b.lines = slices.Insert(b.lines, b.line+1, string(line[b.col:]))
	b.line++
	b.col = 0
}

// MoveLeft steps the cursor back one rune, wrapping to the end of the
// previous line at a line start.
func (b *EditBuffer) MoveLeft() {
	if b.col > 0 {
		b.col--
		return
	}
	if b.line > 0 {
		b.line--
		b.col = utf8.RuneCountInString(b.lines[b.line])
	}
}

// MoveRight steps the cursor forward one rune, wrapping to the start of
// the next line at a line end.
func (b *EditBuffer) MoveRight() {
	if b.col < utf8.RuneCountInString(b.lines[b.line]) {
		b.col++
		return
	}
	if b.line < len(b.lines)-1 {
		b.line++
		b.col = 0
	}
}

// MoveUp moves to the previous line, clamping the column to its length.
func (b *EditBuffer) MoveUp() {
	if b.line == 0 {
		return
	}
	b.line--
	b.col = min(b.col, utf8.RuneCountInString(b.lines[b.line]))
}

// MoveDown moves to the next line, clamping the column to its length.
func (b *EditBuffer) MoveDown() {
	if b.line == len(b.lines)-1 {
		return
	}
	b.line++
	b.col = min(b.col, utf8.RuneCountInString(b.lines[b.line]))
}

// String joins the lines back into template text.
func (b *EditBuffer) String() string {
	return strings.Join(b.lines, "\n")
}

// Cursor returns the zero-based line and rune column.
func (b *EditBuffer) Cursor() (line, col int) {
	return b.line, b.col
}

// Lines returns the buffer's lines for rendering.
func (b *EditBuffer) Lines() []string {
	return b.lines
}
