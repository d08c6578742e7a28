package crawler

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	contentMatcher     = cascadia.MustCompile("div.mw-parser-output")
	articleLinkMatcher = cascadia.MustCompile(`div.mw-parser-output a[href^="` + ArticlePrefix + `"]`)
)

// ContentTexts returns the text nodes found under the article content region.
// Script and style bodies are skipped.
func ContentTexts(doc *goquery.Document) []string {
	var texts []string
	doc.FindMatcher(contentMatcher).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			collectText(n, &texts)
		}
	})
	return texts
}

func collectText(n *html.Node, out *[]string) {
	switch n.Type {
	case html.TextNode:
		*out = append(*out, n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

// ExtractLinks derives the child pages linked from the content region of
// page. Nothing is returned once the page sits at its task's max depth.
// Links that fail validation are logged and skipped.
func ExtractLinks(doc *goquery.Document, page *Page, logger *zap.Logger) []*Page {
	if page.MaxDepthReached() {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seen := make(map[string]struct{})
	var children []*Page
	doc.FindMatcher(articleLinkMatcher).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		child, err := NestedPage(href, page)
		if err != nil {
			logger.Debug("skipping link",
				zap.String("parent", page.URL()),
				zap.String("href", href),
				zap.Error(err),
			)
			return
		}
		if _, dup := seen[child.URL()]; dup {
			return
		}
		seen[child.URL()] = struct{}{}
		children = append(children, child)
	})
	return children
}
