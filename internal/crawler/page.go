package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	siteDomain     = "wikipedia.org"
	articleSegment = "wiki"
	// ArticlePrefix is the path prefix shared by every article URL.
	ArticlePrefix  = "/" + articleSegment + "/"
	defaultEdition = "www"
	pageExt        = ".html"
)

// excludedNamespaces lists path markers of pages that are not articles.
var excludedNamespaces = []string{"File:", "Media:", "Special:", "Template:", "Help:"}

// ParseArticleURL parses raw and validates it as an article URL. The returned
// URL has its fragment and query removed.
func ParseArticleURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, NewValidationError("Unable to parse url")
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = ""
	u.ForceQuery = false
	if err := ValidateURL(u); err != nil {
		return nil, err
	}
	return u, nil
}

// ValidateURL checks that u points at an article of the site family. It is
// shared by initial submission and link derivation.
func ValidateURL(u *url.URL) error {
	if u == nil || u.Hostname() == "" {
		return NewValidationError("Unable to parse url")
	}
	host := strings.ToLower(u.Hostname())
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		domain = host
	}
	if domain != siteDomain {
		return NewValidationError(fmt.Sprintf("Domain should be [%s], but [%s] given", siteDomain, domain))
	}
	segments := pathSegments(u)
	if len(segments) < 2 || segments[0] != articleSegment {
		return NewValidationError(fmt.Sprintf("Article path should start with '%s', but [%s] given", ArticlePrefix, u.EscapedPath()))
	}
	if segments[1] == "" {
		return NewValidationError("Article should not be empty")
	}
	if hasExcludedNamespace(u.Path) {
		return NewValidationError("Files and Special resources are not supported")
	}
	return nil
}

func hasExcludedNamespace(p string) bool {
	for _, ns := range excludedNamespaces {
		if strings.Contains(p, ns) {
			return true
		}
	}
	return false
}

func pathSegments(u *url.URL) []string {
	return strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
}

// Page is one crawl attempt of a single URL within a CrawlTask. It is
// immutable once created.
type Page struct {
	url   *url.URL
	depth int
	task  *CrawlTask
}

// InitialPage returns the depth-1 page of task.
func InitialPage(task *CrawlTask) *Page {
	return &Page{url: task.url, depth: 1, task: task}
}

// NestedPage derives a child of parent from an in-site href. The child keeps
// the parent's scheme and host, drops any fragment, and sits one level deeper.
func NestedPage(href string, parent *Page) (*Page, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, NewValidationError("Unable to parse url")
	}
	u := &url.URL{
		Scheme:  parent.url.Scheme,
		Host:    parent.url.Host,
		Path:    ref.Path,
		RawPath: ref.RawPath,
	}
	if err := ValidateURL(u); err != nil {
		return nil, err
	}
	return &Page{url: u, depth: parent.depth + 1, task: parent.task}, nil
}

// URL returns the fragment-free target URL.
func (p *Page) URL() string {
	return p.url.String()
}

// Depth returns the page depth; the initial page has depth 1.
func (p *Page) Depth() int {
	return p.depth
}

// Task returns the owning top-level crawl.
func (p *Page) Task() *CrawlTask {
	return p.task
}

// MaxDepthReached reports whether links on this page must not be followed.
func (p *Page) MaxDepthReached() bool {
	return p.depth >= p.task.maxDepth
}

// Edition returns the leading host label, which on this site family names the
// language edition. The bare root domain maps to "www".
func (p *Page) Edition() string {
	return edition(p.url)
}

func edition(u *url.URL) string {
	label, _, _ := strings.Cut(strings.ToLower(u.Hostname()), ".")
	if label == "wikipedia" {
		return defaultEdition
	}
	return label
}

// Key returns the canonical dedup key: edition plus the lowercased first
// article segment.
func (p *Page) Key() string {
	return CanonicalKey(p.url)
}

// CanonicalKey derives the dedup key of an already validated article URL.
func CanonicalKey(u *url.URL) string {
	segments := pathSegments(u)
	article := ""
	if len(segments) > 1 {
		article = segments[1]
	}
	return edition(u) + "/" + strings.ToLower(article)
}

// RelativePath returns the sharded storage path of the page, slash separated.
// It doubles as the page's document id in the index.
func (p *Page) RelativePath() string {
	return RelativePath(p.url)
}

// RelativePath derives <edition>/[<b0>/[<b1>/]]<slug>.html for an article URL.
// The slug joins every segment after "wiki" with underscores; the buckets are
// the first letters of the slug reduced to [a-zа-я0-9].
func RelativePath(u *url.URL) string {
	segments := pathSegments(u)
	if len(segments) > 0 {
		segments = segments[1:]
	}
	slug := strings.ToLower(strings.Join(segments, "_"))
	bucket := bucketKey(slug)
	ed := edition(u)
	file := slug + pageExt
	switch {
	case len(bucket) <= 1:
		return path.Join(ed, file)
	case len(bucket) == 2:
		return path.Join(ed, string(bucket[0]), file)
	default:
		return path.Join(ed, string(bucket[0]), string(bucket[1]), file)
	}
}

func bucketKey(slug string) []rune {
	out := make([]rune, 0, len(slug))
	for _, r := range slug {
		if isBucketRune(r) {
			out = append(out, r)
		}
	}
	return out
}

func isBucketRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'а' && r <= 'я') || (r >= '0' && r <= '9')
}

func (p *Page) String() string {
	return fmt.Sprintf("page [%s] at depth %d", p.url, p.depth)
}
