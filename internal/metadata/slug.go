package metadata

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxSlugLen bounds the base slug before collision suffixes are added.
const MaxSlugLen = 50

var foldASCII = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

var lower = cases.Lower(language.Und)

// Slugify reduces s to lowercase ASCII letters, digits, underscores and
// single hyphens.
func Slugify(s string) string {
	folded, _, err := transform.String(foldASCII, s)
	if err != nil {
		folded = s
	}
	folded = lower.String(folded)

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		switch {
		case r == '-' || unicode.IsSpace(r):
			pendingDash = b.Len() > 0
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingDash {
				b.WriteByte('-')
				pendingDash = false
			}
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_")
}

// SlugBase is the slug an episode for date starts from: the date plus the
// first feast name, or "episode" when there are none, cut to MaxSlugLen.
func SlugBase(date time.Time, names []string) string {
	subject := "episode"
	if len(names) > 0 && strings.TrimSpace(names[0]) != "" {
		subject = names[0]
	}
	slug := Slugify(date.Format(dateLayout) + "-" + subject)
	if len(slug) > MaxSlugLen {
		slug = slug[:MaxSlugLen]
	}
	return slug
}
