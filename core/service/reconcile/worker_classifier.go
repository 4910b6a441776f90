// Package reconcile holds the pure parts of a sync pass: classification,
// conflict detection and conflict resolution. Nothing here performs I/O.
package reconcile

import (
	"strings"
	"unicode"

	"booking_server/core/domain"
)

// DefaultClosureKeywords are matched as whole words or phrases against all-day summaries.
var DefaultClosureKeywords = []string{
	"closed",
	"closure",
	"holiday",
	"holidays",
	"bank holiday",
	"public holiday",
	"national holiday",
	"vacation",
	"vacations",
	"day off",
	"time off",
	"out of office",
	"ooo",
	"leave",
	"annual leave",
	"sick leave",
	"cerrado",
	"feriado",
	"festivo",
	"vacaciones",
	"fechado",
	"ferias",
}

// Classifier turns external events into categories. It is safe for concurrent use.
type Classifier struct {
	phrases []string
}

// NewClassifier builds a classifier from the default vocabulary plus extra keywords.
func NewClassifier(extra ...string) *Classifier {
	seen := make(map[string]struct{})
	var phrases []string
	for _, kw := range append(append([]string{}, DefaultClosureKeywords...), extra...) {
		norm := normalize(kw)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		phrases = append(phrases, norm)
	}
	return &Classifier{phrases: phrases}
}

// Classify never fails: input it cannot trust is doubtful.
func (c *Classifier) Classify(ev domain.ExternalEvent) domain.EventCategory {
	if ev.Malformed() {
		return domain.CategoryDoubtful
	}
	if !ev.AllDay {
		return domain.CategoryTimedBooking
	}
	if ev.SpanDays() > 1 || c.MatchesClosure(ev.Summary) {
		return domain.CategorySafeClosure
	}
	return domain.CategoryDoubtful
}

// MatchesClosure reports whether summary contains a closure word or phrase.
func (c *Classifier) MatchesClosure(summary string) bool {
	text := " " + normalize(summary) + " "
	if text == "  " {
		return false
	}
	for _, phrase := range c.phrases {
		if strings.Contains(text, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// normalize lowercases, folds common accents and collapses everything
// that is not a letter or digit into single spaces.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		r = foldAccent(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

func foldAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'â', 'ä', 'ã':
		return 'a'
	case 'é', 'è', 'ê', 'ë':
		return 'e'
	case 'í', 'ì', 'î', 'ï':
		return 'i'
	case 'ó', 'ò', 'ô', 'ö', 'õ':
		return 'o'
	case 'ú', 'ù', 'û', 'ü':
		return 'u'
	case 'ç':
		return 'c'
	case 'ñ':
		return 'n'
	}
	return r
}

// Split partitions a fetched batch by category. Doubtful events whose id is in
// confirmed are promoted to closures.
func (c *Classifier) Split(events []domain.ExternalEvent, confirmed map[string]bool) (timed, closures, doubtful []domain.ExternalEvent) {
	for _, ev := range events {
		switch c.Classify(ev) {
		case domain.CategoryTimedBooking:
			timed = append(timed, ev)
		case domain.CategorySafeClosure:
			closures = append(closures, ev)
		default:
			if confirmed[ev.ID] && !ev.Malformed() {
				closures = append(closures, ev)
				continue
			}
			doubtful = append(doubtful, ev)
		}
	}
	return timed, closures, doubtful
}
