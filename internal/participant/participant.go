// Package participant implements the labeler identity convention used to
// namespace result and randomization-list folders.
//
// The code is assembled from biographical fragments rather than assigned, so
// a returning participant can re-derive it in a later session without the lab
// keeping a roster that links codes to people. The convention: first two
// letters of the birth name, two-digit birth day, last two letters of the
// birthplace, first two letters of the mother's first name, all upper-case.
// Example: birth name "Müller", born on the 3rd in Bremen, mother "Anna"
// gives MU03ENAN.
package participant

import (
	"fmt"
	"strings"
)

// IDLength is the fixed length of a labeler code.
const IDLength = 8

// Fragments are the biographical pieces a labeler code is assembled from.
type Fragments struct {
	// BirthName is the family name at birth.
	BirthName string `json:"birth_name"`

	// BirthDay is the day of the month, 1-31.
	BirthDay int `json:"birth_day"`

	// Birthplace is the town or city of birth.
	Birthplace string `json:"birthplace"`

	// MotherFirstName is the mother's first name.
	MotherFirstName string `json:"mother_first_name"`
}

// Derive assembles the 8-character labeler code from the fragments.
func Derive(f Fragments) (string, error) {
	if f.BirthDay < 1 || f.BirthDay > 31 {
		return "", fmt.Errorf("birth day %d out of range 1-31", f.BirthDay)
	}

	birthName, err := letters(f.BirthName, "birth name")
	if err != nil {
		return "", err
	}
	birthplace, err := letters(f.Birthplace, "birthplace")
	if err != nil {
		return "", err
	}
	mother, err := letters(f.MotherFirstName, "mother's first name")
	if err != nil {
		return "", err
	}

	code := string(birthName[:2]) +
		fmt.Sprintf("%02d", f.BirthDay) +
		string(birthplace[len(birthplace)-2:]) +
		string(mother[:2])
	return strings.ToUpper(code), nil
}

// letters reduces a fragment to its plain letters. Whitespace, hyphens and
// other punctuation are dropped, and common Latin diacritics fold to their
// ASCII base so the code stays safe as a directory name on every platform.
func letters(s, field string) ([]rune, error) {
	var out []rune
	for _, r := range strings.ToLower(s) {
		if folded, ok := foldLetter(r); ok {
			out = append(out, folded)
		}
	}
	if len(out) < 2 {
		return nil, fmt.Errorf("%s %q has fewer than two usable letters", field, s)
	}
	return out, nil
}

// foldLetter maps a lower-cased rune to its ASCII base letter. Runes outside
// the Latin repertoire are dropped rather than guessed at.
func foldLetter(r rune) (rune, bool) {
	if r >= 'a' && r <= 'z' {
		return r, true
	}
	switch r {
	case 'à', 'á', 'â', 'ã', 'ä', 'å', 'ā', 'ă', 'ą', 'æ':
		return 'a', true
	case 'ç', 'ć', 'č':
		return 'c', true
	case 'ď', 'đ':
		return 'd', true
	case 'è', 'é', 'ê', 'ë', 'ē', 'ė', 'ę', 'ě':
		return 'e', true
	case 'ğ':
		return 'g', true
	case 'ì', 'í', 'î', 'ï', 'ī', 'ı':
		return 'i', true
	case 'ł':
		return 'l', true
	case 'ñ', 'ń', 'ň':
		return 'n', true
	case 'ò', 'ó', 'ô', 'õ', 'ö', 'ø', 'ō':
		return 'o', true
	case 'ř':
		return 'r', true
	case 'ś', 'š', 'ş', 'ß':
		return 's', true
	case 'ť', 'þ':
		return 't', true
	case 'ù', 'ú', 'û', 'ü', 'ū', 'ů':
		return 'u', true
	case 'ý', 'ÿ':
		return 'y', true
	case 'ź', 'ż', 'ž':
		return 'z', true
	}
	return 0, false
}

// Validate checks the invariants every labeler code carries: non-empty,
// fixed length, upper-case letters and digits only.
func Validate(id string) error {
	if id == "" {
		return fmt.Errorf("labeler id is empty")
	}
	if len(id) != IDLength {
		return fmt.Errorf("labeler id %q must be %d characters, got %d", id, IDLength, len(id))
	}
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return fmt.Errorf("labeler id %q may only contain upper-case letters and digits", id)
		}
	}
	return nil
}

// Normalize prepares a hand-typed labeler code for validation and lookup.
func Normalize(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
