package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const wrongSeparator = '•'

type styledRune struct {
	s       string
	width   int
	isSpace bool
}

// promptState is what the prompt renderer needs from a session.
type promptState struct {
	tokens []string
	// committed holds one entry per finished token: whether it was typed
	// exactly.
	committed []bool
	buffer    string
	// showCursor underlines the next position to type.
	showCursor bool
}

func buildStyledRunes(st promptState) []styledRune {
	current := len(st.committed)
	buf := []rune(st.buffer)
	out := make([]styledRune, 0, len(st.tokens)*6)

	for i, token := range st.tokens {
		if i > 0 {
			out = append(out, separatorRune(st, i-1, buf))
		}
		for j, r := range []rune(token) {
			style := pendingStyle
			switch {
			case i < current && st.committed[i]:
				style = correctStyle
			case i < current:
				style = incorrectStyle
			case i == current && j < len(buf):
				if buf[j] == r {
					style = correctStyle
				} else {
					style = incorrectStyle
				}
			case i == current:
				style = currentWordStyle
				if st.showCursor && j == len(buf) {
					style = style.Underline(true)
				}
			}
			out = append(out, styledRune{
				s:     style.Render(string(r)),
				width: runewidth.RuneWidth(r),
			})
		}
	}
	return out
}

// separatorRune styles the space after token i.
func separatorRune(st promptState, i int, buf []rune) styledRune {
	current := len(st.committed)
	displayed := ' '
	style := pendingStyle
	switch {
	case i < current:
		style = correctStyle
	case i == current:
		n := runeCount(st.tokens[i])
		if len(buf) > n {
			displayed = wrongSeparator
			style = incorrectStyle
		} else if st.showCursor && len(buf) == n {
			style = cursorStyle
		}
	}
	return styledRune{
		s:       style.Render(string(displayed)),
		width:   runewidth.RuneWidth(displayed),
		isSpace: true,
	}
}

func runeCount(s string) int {
	return len([]rune(s))
}

func renderStyledRunes(runes []styledRune) string {
	var b strings.Builder
	for _, item := range runes {
		b.WriteString(item.s)
	}
	return b.String()
}

// wrapStyledRunes breaks lines at the last space that fits width, or mid
// word when a word is wider than the line.
func wrapStyledRunes(runes []styledRune, width int) string {
	if width <= 0 {
		return renderStyledRunes(runes)
	}
	var out strings.Builder
	line := make([]styledRune, 0, len(runes))
	lineWidth := 0
	lastSpace := -1

	for i := 0; i < len(runes); {
		item := runes[i]
		if lineWidth+item.width > width && len(line) > 0 {
			if lastSpace >= 0 {
				out.WriteString(renderStyledRunes(line[:lastSpace]))
				line = append([]styledRune{}, line[lastSpace+1:]...)
			} else {
				out.WriteString(renderStyledRunes(line))
				line = line[:0]
			}
			out.WriteRune('\n')
			lineWidth, lastSpace = measureLine(line)
			continue
		}
		line = append(line, item)
		lineWidth += item.width
		if item.isSpace {
			lastSpace = len(line) - 1
		}
		i++
	}
	out.WriteString(renderStyledRunes(line))
	return out.String()
}

func measureLine(line []styledRune) (width, lastSpace int) {
	lastSpace = -1
	for i, item := range line {
		width += item.width
		if item.isSpace {
			lastSpace = i
		}
	}
	return width, lastSpace
}
