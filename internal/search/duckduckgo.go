package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/dorkscan/internal/model"
)

// DefaultDuckDuckGoEndpoint is the JavaScript-free DuckDuckGo results page.
const DefaultDuckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// maxPageSize bounds the HTML read for one results page.
const maxPageSize = 2 * 1024 * 1024

var (
	// errLayoutChanged is wrapped in a parse-failure when the page has
	// neither results nor the no-results marker.
	errLayoutChanged = errors.New("results container not found (layout changed or challenge page)")

	// errChallenge is wrapped in a rate-limited failure when DuckDuckGo
	// serves its bot challenge instead of results.
	errChallenge = errors.New("bot challenge served instead of results")

	// errNoReadableLinks is wrapped in a parse-failure when result
	// containers exist but none of them carries a usable result link.
	errNoReadableLinks = errors.New("result containers found but no result link could be read (layout changed)")
)

// DuckDuckGo scrapes the DuckDuckGo HTML endpoint.
// Only the first results page is read.
type DuckDuckGo struct {
	client   *http.Client
	endpoint string
	logger   *slog.Logger
}

// NewDuckDuckGo creates a DuckDuckGo scraping backend.
func NewDuckDuckGo(client *http.Client, opts ...Option) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	s := newSettings(DefaultDuckDuckGoEndpoint, opts)
	return &DuckDuckGo{
		client:   client,
		endpoint: s.endpoint,
		logger:   s.logger,
	}
}

// Name implements Backend.
func (d *DuckDuckGo) Name() string {
	return model.BackendDuckDuckGo
}

// Search implements Backend.
func (d *DuckDuckGo) Search(ctx context.Context, query string, count int) ([]model.ResultItem, error) {
	if count <= 0 {
		return nil, nil
	}

	reqURL := d.endpoint + "?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &BackendError{Backend: d.Name(), Kind: KindBadRequest, Err: err}
	}
	req.Header.Set("Referer", "https://html.duckduckgo.com/")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, d.Name(), err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &BackendError{
			Backend: d.Name(),
			Kind:    KindRateLimited,
			Status:  resp.StatusCode,
			Err:     errors.New("automated requests are being blocked"),
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &BackendError{
			Backend: d.Name(),
			Kind:    KindNetworkFailure,
			Status:  resp.StatusCode,
			Err:     errors.New(http.StatusText(resp.StatusCode)),
		}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &BackendError{
			Backend: d.Name(),
			Kind:    KindBadRequest,
			Status:  resp.StatusCode,
			Err:     errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &BackendError{Backend: d.Name(), Kind: KindParseFailure, Status: resp.StatusCode, Err: err}
	}

	items, err := d.parse(doc, query, count)
	if err != nil {
		var be *BackendError
		if errors.As(err, &be) {
			be.Status = resp.StatusCode
		}
		return nil, err
	}

	d.logger.Debug("duckduckgo page parsed", "results", len(items))
	return items, nil
}

func (d *DuckDuckGo) parse(doc *goquery.Document, query string, count int) ([]model.ResultItem, error) {
	results := doc.Find("div.result")
	if results.Length() == 0 {
		if isNoResultsPage(doc) {
			return nil, nil
		}
		if isChallengePage(doc) {
			return nil, &BackendError{Backend: d.Name(), Kind: KindRateLimited, Err: errChallenge}
		}
		return nil, &BackendError{Backend: d.Name(), Kind: KindParseFailure, Err: errLayoutChanged}
	}

	items := make([]model.ResultItem, 0, count)
	seen := make(map[string]bool)
	organic := 0
	results.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") || s.HasClass("result--no-result") {
			return true
		}
		organic++

		link := s.Find("a.result__a").First()
		href, ok := link.Attr("href")
		if !ok {
			return true
		}
		target := unwrapRedirect(href)
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			return true
		}
		if seen[target] {
			return true
		}
		seen[target] = true

		title := strings.TrimSpace(link.Text())
		snippet := strings.TrimSpace(s.Find(".result__snippet").First().Text())
		items = append(items, model.NewResultItem(model.Query{Text: query}, d.Name(), target, title, snippet))

		return len(items) < count
	})

	if len(items) == 0 && organic > 0 && !isNoResultsPage(doc) {
		return nil, &BackendError{Backend: d.Name(), Kind: KindParseFailure, Err: errNoReadableLinks}
	}
	return items, nil
}

// unwrapRedirect returns the destination of a DuckDuckGo "/l/?uddg=" redirect
// link, or href unchanged.
func unwrapRedirect(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.HasPrefix(u.Path, "/l/") {
		if dest := u.Query().Get("uddg"); dest != "" {
			return dest
		}
	}
	return href
}

func isNoResultsPage(doc *goquery.Document) bool {
	if doc.Find(".no-results, div.result--no-result").Length() > 0 {
		return true
	}
	return strings.Contains(doc.Find("body").Text(), "No results.")
}

func isChallengePage(doc *goquery.Document) bool {
	return doc.Find("form#challenge-form, .anomaly-modal, #anomaly-modal").Length() > 0
}
