// Package fetch retrieves search-result documents and resolves geo origins.
// It owns the session headers and cookie state; callers only see documents
// and classified outcomes.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"feedsentry/internal/search"
)

// Config captures the fetcher's network and session knobs.
type Config struct {
	BaseURL        string
	UserAgent      string
	Cookie         string
	AcceptLanguage string
	// TypeFilter and ContainFilter are opaque query-string fragments
	// selecting post type and required content (e.g. "&scope=ori",
	// "&haspic=1").
	TypeFilter     string
	ContainFilter  string
	RequestTimeout time.Duration
}

// Markers in an HTTP 200 body that classify the branch as terminal.
var (
	blockedMarkers = []string{"请输入验证码", "访问过于频繁"}
	emptyMarkers   = []string{"card-no-result", "抱歉，未找到相关结果"}
)

// Client implements search.Fetcher over a Colly collector.
type Client struct {
	base   *colly.Collector
	cfg    Config
	logger *zap.Logger
}

// NewClient constructs a configured Colly-based fetcher.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://s.weibo.com/weibo"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	return &Client{
		base:   base,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Fetch retrieves one search page and classifies the response body.
// Transport errors and non-2xx statuses surface as (transient) errors.
func (c *Client) Fetch(ctx context.Context, q search.Query) (search.Document, error) {
	target := c.buildURL(q)

	collector := c.base.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		if c.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", c.cfg.AcceptLanguage)
		}
		if c.cfg.Cookie != "" {
			r.Headers.Set("Cookie", c.cfg.Cookie)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{status: r.StatusCode, body: append([]byte{}, r.Body...)})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown collector error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{status: status, err: err})
	})

	if err := collector.Visit(target); err != nil {
		return search.Document{}, fmt.Errorf("visit %s: %w", target, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return search.Document{}, err
		}
		if res.err != nil {
			return search.Document{}, fmt.Errorf("fetch %s (status %d): %w", target, res.status, res.err)
		}
		return search.Document{
			URL:     target,
			Status:  res.status,
			Body:    res.body,
			Outcome: classify(res.body),
		}, nil
	default:
		return search.Document{}, fmt.Errorf("fetch %s produced no result", target)
	}
}

// buildURL renders the query into the endpoint's URL form. Topic keywords
// ("#tag#") are covered by ordinary escaping.
func (c *Client) buildURL(q search.Query) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s?q=%s", c.cfg.BaseURL, url.QueryEscape(q.Keyword))
	b.WriteString(c.cfg.TypeFilter)
	b.WriteString(c.cfg.ContainFilter)
	if q.Region != nil {
		city := q.CityCode
		if city == "" {
			city = "1000" // whole province
		}
		fmt.Fprintf(&b, "&region=custom:%s:%s", q.Region.Code, city)
	}
	fmt.Fprintf(&b, "&timescope=custom:%s:%s", formatTimescope(q.Window.Start), formatTimescope(q.Window.End))
	fmt.Fprintf(&b, "&page=%d", q.Page)
	return b.String()
}

// formatTimescope renders YYYY-MM-DD-H with no leading zero on the hour,
// the only form the endpoint accepts.
func formatTimescope(t time.Time) string {
	return fmt.Sprintf("%s-%d", t.Format("2006-01-02"), t.Hour())
}

func classify(body []byte) search.Outcome {
	for _, marker := range blockedMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return search.OutcomeBlocked
		}
	}
	for _, marker := range emptyMarkers {
		if bytes.Contains(body, []byte(marker)) {
			return search.OutcomeEmpty
		}
	}
	return search.OutcomeOK
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}
