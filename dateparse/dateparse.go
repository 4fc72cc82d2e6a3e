// Package dateparse extracts dates and times from natural language, for
// phrases like "tomorrow at 10am", "next Friday at 2pm", or "in 3 days".
package dateparse

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Parser resolves natural-language temporal expressions. Ambiguous times
// prefer the future: "at 5pm" said at 6pm means tomorrow. Expressions that
// name a day ("yesterday at 11am", "Monday at 9") are taken literally even
// when they land in the past.
type Parser struct {
	w   *when.Parser
	loc *time.Location
}

func New(timezone string) (*Parser, error) {
	if strings.TrimSpace(timezone) == "" {
		timezone = "UTC"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", timezone, err)
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w, loc: loc}, nil
}

func (p *Parser) Location() *time.Location { return p.loc }

// Parse finds a date/time expression in text relative to now, in the
// parser's default timezone. Returns false when the text contains no
// recognizable temporal expression.
func (p *Parser) Parse(text string, now time.Time) (time.Time, bool) {
	return p.ParseIn(text, now, p.loc)
}

// ParseIn parses relative to now in the given timezone, so "tomorrow at 9am"
// means 9am on the caller's local tomorrow. A nil loc falls back to the
// parser's default.
func (p *Parser) ParseIn(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	t, _, _, ok := p.parse(text, now, loc)
	return t, ok
}

// ExtractFromTask separates a temporal expression from a task description.
// "call Gabi tomorrow at 10am" yields the parsed time plus "Call Gabi". When
// no date is found the original description is returned unchanged.
func (p *Parser) ExtractFromTask(description string, now time.Time) (time.Time, string, bool) {
	t, index, matched, ok := p.parse(description, now, p.loc)
	if !ok {
		return time.Time{}, description, false
	}

	cleaned := description[:index] + description[index+len(matched):]
	cleaned = trimDanglingWords(cleaned)
	if len(cleaned) < 2 {
		return t, description, true
	}
	return t, capitalize(cleaned), true
}

func (p *Parser) parse(text string, now time.Time, loc *time.Location) (time.Time, int, string, bool) {
	if loc == nil {
		loc = p.loc
	}
	r, err := p.w.Parse(text, now.In(loc))
	if err != nil || r == nil {
		return time.Time{}, 0, "", false
	}

	t := r.Time.In(loc)
	// Day-less times resolve to today; bump the ones that already passed to
	// tomorrow. Expressions naming a day stay where the user put them.
	if t.Before(now) && now.Sub(t) < 24*time.Hour && !namesDay(r.Text) {
		t = t.Add(24 * time.Hour)
	}
	return t, r.Index, r.Text, true
}

// dayWords pin an expression to a specific day, so the prefer-future bump
// must not move it.
var dayWords = []string{
	"yesterday", "today", "tomorrow", "tonight",
	"mon", "tue", "wed", "thu", "fri", "sat", "sun",
	"jan", "feb", "mar", "apr", "may", "jun",
	"jul", "aug", "sep", "oct", "nov", "dec",
	"last", "next", "ago", "week",
}

func namesDay(matched string) bool {
	lowered := strings.ToLower(matched)
	for _, w := range dayWords {
		if strings.Contains(lowered, w) {
			return true
		}
	}
	return false
}

// trimDanglingWords removes connective words left behind after cutting a
// temporal expression out of a description ("remind me  at" -> "remind me").
func trimDanglingWords(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for _, word := range []string{"at", "on", "by", "in"} {
		s = strings.TrimSuffix(s, " "+word)
		s = strings.TrimPrefix(s, word+" ")
	}
	return strings.TrimSpace(s)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// FormatRelative renders a due date for chat display: "Today at 3:00 PM",
// "Tomorrow at 10:00 AM", or "Tuesday, 28 Oct at 10:00 AM", with a warning
// prefix once the time has passed.
func FormatRelative(t, now time.Time) string {
	prefix := ""
	if t.Before(now) {
		prefix = "⚠️ OVERDUE: "
	}

	lt := t.In(now.Location())
	daysDiff := daysBetween(now, lt)
	timeStr := lt.Format("3:04 PM")

	switch daysDiff {
	case 0:
		return prefix + "Today at " + timeStr
	case 1:
		return prefix + "Tomorrow at " + timeStr
	default:
		return prefix + lt.Format("Monday, 02 Jan at ") + timeStr
	}
}

// FormatAbsolute renders a full date like
// "Tuesday, October 28, 2025 at 10:00 AM".
func FormatAbsolute(t time.Time) string {
	return t.Format("Monday, January 02, 2006 at 03:04 PM")
}

func daysBetween(now, t time.Time) int {
	ny, nm, nd := now.Date()
	ty, tm, td := t.Date()
	nowDate := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	tDate := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(tDate.Sub(nowDate).Hours() / 24)
}

// ToISO encodes a time for storage.
func ToISO(t time.Time) string {
	return t.Format(time.RFC3339)
}

// FromISO decodes a stored timestamp; both offset and trailing-Z forms parse.
func FromISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
