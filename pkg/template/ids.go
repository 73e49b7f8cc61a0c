package template

import (
	"strings"
	"unicode"
)

// FamilyOf derives the family tag from a protocol id ("A-1" -> "A").
func FamilyOf(id string) string {
	family, _, ok := strings.Cut(id, "-")
	if !ok {
		return ""
	}
	return family
}

// SuffixOf returns the id without its family prefix ("A-1" -> "1").
func SuffixOf(id string) string {
	_, suffix, ok := strings.Cut(id, "-")
	if !ok {
		return id
	}
	return suffix
}

// PairID returns the id of the template paired with id in another family.
func PairID(id, family string) string {
	return family + "-" + SuffixOf(id)
}

// CompareIDs orders protocol ids naturally: digit runs compare by numeric
// value, so "A-2" sorts before "A-10". It returns -1, 0 or 1.
func CompareIDs(a, b string) int {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na := strings.TrimLeft(string(ar[si:i]), "0")
			nb := strings.TrimLeft(string(br[sj:j]), "0")
			if len(na) != len(nb) {
				return sign(len(na) - len(nb))
			}
			if na != nb {
				if na < nb {
					return -1
				}
				return 1
			}
			continue
		}
		if ar[i] != br[j] {
			if ar[i] < br[j] {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(ar)-i < len(br)-j:
		return -1
	case len(ar)-i > len(br)-j:
		return 1
	}
	return strings.Compare(a, b)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
