package entity

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnknownMode is returned when a mode string is not one of the supported modes.
var ErrUnknownMode = errors.New("unknown mode")

// Mode selects what a crawl harvests from each page.
type Mode string

const (
	ModeEmail Mode = "email"
	ModeJPG   Mode = "jpg"
	ModePDF   Mode = "pdf"
	ModeAll   Mode = "all"
	ModeHTML  Mode = "html"
)

// MaxDepth is the deepest link-following level a run may request.
const MaxDepth = 2

// ParseMode matches s exactly (case-sensitive) against the supported modes.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", ErrUnknownMode
	}
	return m, nil
}

func (m Mode) Valid() bool {
	switch m {
	case ModeEmail, ModeJPG, ModePDF, ModeAll, ModeHTML:
		return true
	}
	return false
}

// CapturesHTML reports whether full page markup is written for this mode.
// Capturing markup forfeits link-following to keep output bounded.
func (m Mode) CapturesHTML() bool {
	return m == ModeHTML || m == ModeAll
}

// Families lists the pattern families extracted in this mode.
func (m Mode) Families() []Mode {
	switch m {
	case ModeEmail, ModeJPG, ModePDF:
		return []Mode{m}
	case ModeAll:
		return []Mode{ModeEmail, ModeJPG, ModePDF}
	}
	return nil
}

func (m Mode) String() string { return string(m) }

// ParseDepth converts operator input into a depth in [0, MaxDepth].
// Only the leading integer counts, so "2 levels" is 2 and "1.5" is 1.
// Input without one is treated as 0.
func ParseDepth(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	d, err := strconv.Atoi(s[:end])
	if err != nil {
		// Out of int range; only the sign matters after clamping.
		if s[0] == '-' {
			return 0
		}
		return MaxDepth
	}
	return ClampDepth(d)
}

func ClampDepth(d int) int {
	return max(0, min(MaxDepth, d))
}
