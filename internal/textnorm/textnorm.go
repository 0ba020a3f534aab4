// =============================================================================
// Invoice Rollup - Text Normalization
// =============================================================================
//
// This module turns free-text names into comparison keys and sanitizes the
// names the resolution oracle sends back.
//
// FUNCTIONS:
//   - Clean:            raw vendor/item text -> cleaned key (idempotent)
//   - Sanitize:         oracle output -> canonical-name candidate
//   - Finalize:         Sanitize with a fallback for empty results
//   - NormalizeHeader:  column header -> lookup form (NFKC, no spaces, lower)
//
// All functions apply Unicode compatibility normalization (NFKC) first, so
// full-width letters, digits and punctuation compare equal to their ASCII
// counterparts and half-width katakana compare equal to full-width katakana.
//
// =============================================================================

package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ForbiddenChars never survive Clean or Sanitize.
const ForbiddenChars = "「」『』“”‘’()[]{}<>・：；。，、!！?？…"

// maxPasses bounds the fixpoint loops. Every pass after the first can only
// delete characters, so real inputs settle in two or three passes.
const maxPasses = 16

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Latin legal-entity tokens only count as whole words; "Co" in
	// "Costco" is part of the name.
	latinLegalRe = regexp.MustCompile(`(?i)(^|[\s,.])(incorporated|inc|corporation|corp|co|ltd|limited|llc|k\.k|kk)\.?([\s,]|$)`)

	// Parenthesized abbreviations, already NFKC-folded: ㈱ and （株） both
	// become "(株)".
	bracketLegal = []string{"(株)", "(有)", "(合)", "(資)", "(名)", "(同)"}

	japaneseLegal = []string{"株式会社", "有限会社", "合同会社", "合資会社", "合名会社"}

	// Longest first so "様分" goes before "様".
	honorificSuffixes = []string{"様分", "御中", "先生", "さん", "様", "殿"}
)

// =============================================================================
// CLEANER
// =============================================================================

// Clean normalizes raw free text into a comparison key.
//
// The result keeps letters, digits, kana, CJK ideographs and the dash family
// (- – — ― ─); everything else, honorific suffixes and legal-entity tokens
// are removed. Clean(Clean(s)) == Clean(s) for every s.
func Clean(raw string) string {
	s := raw
	for i := 0; i < maxPasses; i++ {
		next := cleanOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func cleanOnce(s string) string {
	s = norm.NFKC.String(s)
	s = whitespaceRe.ReplaceAllString(s, " ")

	for _, tok := range bracketLegal {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = stripLatinLegal(s)

	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(ForbiddenChars, r) || !keepRune(r) {
			return -1
		}
		return r
	}, s)

	for _, tok := range japaneseLegal {
		s = strings.ReplaceAll(s, tok, "")
	}

	s = trimHonorifics(s)

	return strings.TrimSpace(s)
}

// stripLatinLegal removes Latin legal-entity tokens until none is left. A
// match consumes its trailing separator, so "Co Ltd" needs a second round
// for "Ltd" before spaces are dropped.
func stripLatinLegal(s string) string {
	for {
		next := latinLegalRe.ReplaceAllString(s, "$1$3")
		if next == s {
			return s
		}
		s = next
	}
}

// keepRune reports whether r survives cleaning.
func keepRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsNumber(r), r == '_':
		return true
	case r >= 0x3040 && r <= 0x30FF: // hiragana, katakana, prolonged sound mark
		return true
	case r >= 0x3400 && r <= 0x9FFF: // CJK ideographs
		return true
	case r == '-', r == '–', r == '—', r == '―', r == '─':
		return true
	}
	return false
}

func trimHonorifics(s string) string {
	for {
		trimmed := false
		for _, h := range honorificSuffixes {
			if strings.HasSuffix(s, h) && len(s) > len(h) {
				s = strings.TrimSuffix(s, h)
				trimmed = true
			}
		}
		if !trimmed {
			return s
		}
	}
}

// =============================================================================
// ORACLE OUTPUT SANITIZER
// =============================================================================

// Sanitize applies the output rules for canonical names: no whitespace,
// NFKC, ASCII letters upper-cased, forbidden punctuation removed.
func Sanitize(s string) string {
	for i := 0; i < maxPasses; i++ {
		next := sanitizeOnce(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func sanitizeOnce(s string) string {
	// "…" folds to "..." under NFKC, so forbidden characters go first.
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(ForbiddenChars, r) {
			return -1
		}
		return r
	}, s)
	s = norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case strings.ContainsRune(ForbiddenChars, r):
			return -1
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		}
		return r
	}, s)
}

// Finalize sanitizes an oracle response. Empty or whitespace-only input, or
// input that sanitizes to nothing, yields fallback unchanged. fallback is not
// sanitized, so Finalize(Finalize(s, fb), fb) == Finalize(s, fb) only when fb
// is already in sanitized form.
func Finalize(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	if out := Sanitize(s); out != "" {
		return out
	}
	return fallback
}

// ContainsForbidden reports whether s holds any forbidden character.
func ContainsForbidden(s string) bool {
	return strings.ContainsAny(s, ForbiddenChars)
}

// =============================================================================
// HEADER NORMALIZATION
// =============================================================================

// NormalizeHeader folds a column header for comparison: NFKC, all
// whitespace removed, lower case.
func NormalizeHeader(h string) string {
	s := norm.NFKC.String(h)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return cases.Lower(language.Und).String(s)
}
