// Package parser builds queryable documents from downloaded article bodies.
package parser

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

// ErrEmptyBody is returned for a zero-length body.
var ErrEmptyBody = errors.New("empty body")

// Parser implements crawler.Parser with goquery.
type Parser struct{}

var _ crawler.Parser = Parser{}

// New creates a Parser.
func New() Parser {
	return Parser{}
}

// Parse builds a document from body. The HTML5 parser repairs most markup, so
// failures are limited to empty or unreadable input.
func (Parser) Parse(body []byte) (*goquery.Document, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build document: %w", err)
	}
	return doc, nil
}
