package index

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

// Delimiters separate tokens in indexed text.
const Delimiters = " \t\n\r\f,.:;?![]'"

// Tokenize splits text on Delimiters, dropping empty tokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return strings.ContainsRune(Delimiters, r)
	})
}

// NormalizeTerm lowercases raw and keeps only Latin and Cyrillic letters and
// dashes. A raw term that normalizes to nothing is rejected.
func NormalizeTerm(raw string) (string, error) {
	term := newNormalizer().normalize(raw)
	if term == "" {
		return "", crawler.NewValidationError(fmt.Sprintf("Term should contain only letters and dash, but [%s] given", raw))
	}
	return term, nil
}

// normalizer is not safe for concurrent use.
type normalizer struct {
	lower cases.Caser
}

func newNormalizer() *normalizer {
	return &normalizer{lower: cases.Lower(language.Und)}
}

func (n *normalizer) normalize(raw string) string {
	lowered := n.lower.String(raw)
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if isTermRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isTermRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'а' && r <= 'я') || r == '-'
}
