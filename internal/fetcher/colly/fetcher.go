// Package collyfetcher implements crawler.Downloader using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/wikicrawler/internal/crawler"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// Transport replaces the pooled HTTP transport. Optional.
	Transport http.RoundTripper
}

// Fetcher downloads article bodies with a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

var _ crawler.Downloader = (*Fetcher)(nil)

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	// Clones share the visited store, so revisits must be allowed for repeat
	// crawls of an article.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// Fetch executes a single HTTP GET and returns the body of a 200 response.
// Every failure is a crawler RemoteError.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	var result fetchResult
	f.configureCollectorHooks(collector, &result)

	start := time.Now()
	canceled, visitErr := f.runCollector(ctx, collector, url)
	if canceled {
		return nil, crawler.RemoteError(url, visitErr)
	}
	switch {
	case result.status != 0 && result.status != http.StatusOK:
		return nil, crawler.RemoteError(url, &crawler.HTTPStatusError{StatusCode: result.status})
	case visitErr != nil:
		return nil, crawler.RemoteError(url, visitErr)
	case result.err != nil:
		return nil, crawler.RemoteError(url, fmt.Errorf("colly response failed: %w", result.err))
	case result.status == 0:
		return nil, crawler.RemoteError(url, errors.New("no response received"))
	}
	f.logger.Debug("fetched",
		zap.String("url", url),
		zap.Int("bytes", len(result.body)),
		zap.Duration("duration", time.Since(start)),
	)
	return result.body, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *fetchResult) {
	hooks.OnResponse(func(r *colly.Response) {
		result.status = r.StatusCode
		result.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.status = r.StatusCode
		}
		result.err = err
	})
}

// runCollector visits url. When ctx ends first it reports canceled and the
// visit is left to unwind on its own, so hook results must not be read.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return true, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return false, fmt.Errorf("colly visit failed: %w", err)
		}
		return false, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
	}
}
