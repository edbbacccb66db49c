package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/dorkscan/internal/model"
)

const (
	// DefaultCSEEndpoint is the Custom Search JSON API endpoint.
	DefaultCSEEndpoint = "https://www.googleapis.com/customsearch/v1"

	// csePageSize is the maximum num parameter accepted by the API.
	csePageSize = 10

	// cseMaxResults is the API's hard limit on start+num.
	cseMaxResults = 100
)

// CSE queries the Google Custom Search JSON API.
type CSE struct {
	client   *http.Client
	endpoint string
	creds    Credentials
	logger   *slog.Logger
}

// NewCSE creates a Custom Search backend.
// It returns ErrMissingCredentials unless both key and engine id are set.
func NewCSE(client *http.Client, creds Credentials, opts ...Option) (*CSE, error) {
	if !creds.Complete() {
		return nil, ErrMissingCredentials
	}
	if client == nil {
		client = http.DefaultClient
	}
	s := newSettings(DefaultCSEEndpoint, opts)
	return &CSE{
		client:   client,
		endpoint: s.endpoint,
		creds:    creds,
		logger:   s.logger,
	}, nil
}

// Name implements Backend.
func (c *CSE) Name() string {
	return model.BackendCSE
}

type cseItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type cseResponse struct {
	Items   []cseItem `json:"items"`
	Queries struct {
		NextPage []struct {
			StartIndex int `json:"startIndex"`
		} `json:"nextPage"`
	} `json:"queries"`
}

type cseErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
		Details []struct {
			Reason   string            `json:"reason"`
			Metadata map[string]string `json:"metadata"`
		} `json:"details"`
	} `json:"error"`
}

// Search implements Backend. It pages through the API, ten results at a
// time, until count results were collected or no next page exists.
func (c *CSE) Search(ctx context.Context, query string, count int) ([]model.ResultItem, error) {
	if count <= 0 {
		return nil, nil
	}
	if count > cseMaxResults {
		count = cseMaxResults
	}

	items := make([]model.ResultItem, 0, count)
	start := 1
	for len(items) < count && start <= cseMaxResults {
		num := min(csePageSize, count-len(items), cseMaxResults-start+1)

		page, err := c.fetchPage(ctx, query, start, num)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("custom search page fetched",
			"start", start,
			"num", num,
			"results", len(page.Items),
		)

		for _, it := range page.Items {
			if it.Link == "" {
				continue
			}
			items = append(items, model.NewResultItem(model.Query{Text: query}, c.Name(), it.Link, it.Title, it.Snippet))
			if len(items) == count {
				break
			}
		}

		if len(page.Items) == 0 || len(page.Queries.NextPage) == 0 {
			break
		}
		next := page.Queries.NextPage[0].StartIndex
		if next <= start {
			next = start + len(page.Items)
		}
		start = next
	}

	return items, nil
}

func (c *CSE) fetchPage(ctx context.Context, query string, start, num int) (*cseResponse, error) {
	params := url.Values{}
	params.Set("key", c.creds.APIKey)
	params.Set("cx", c.creds.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	params.Set("start", strconv.Itoa(start))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &BackendError{Backend: c.Name(), Kind: KindBadRequest, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, c.Name(), redactKey(err))
	}
	defer drain(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // partial body is enough for classification
		return nil, c.classify(resp.StatusCode, body)
	}

	var page cseResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &BackendError{
			Backend: c.Name(),
			Kind:    KindParseFailure,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("malformed response: %w", err),
		}
	}
	return &page, nil
}

// classify maps an error response to a BackendError.
func (c *CSE) classify(status int, body []byte) *BackendError {
	be := &BackendError{Backend: c.Name(), Status: status}

	var er cseErrorResponse
	message := http.StatusText(status)
	reasons := make([]string, 0, 2)
	dailyLimit := false
	if err := json.Unmarshal(body, &er); err == nil {
		if er.Error.Message != "" {
			message = er.Error.Message
		}
		for _, e := range er.Error.Errors {
			reasons = append(reasons, e.Reason)
			dailyLimit = dailyLimit || mentionsDailyLimit(e.Message)
		}
		for _, d := range er.Error.Details {
			reasons = append(reasons, d.Reason)
			dailyLimit = dailyLimit || mentionsDailyLimit(d.Metadata["quota_limit"])
		}
		dailyLimit = dailyLimit || mentionsDailyLimit(er.Error.Message)
	}
	be.Err = errors.New(message)

	// Daily quota exhaustion arrives as RESOURCE_EXHAUSTED with the
	// rateLimitExceeded reason; only the limit name tells it apart.
	quota := hasReason(reasons, "dailyLimitExceeded", "quotaExceeded") ||
		(dailyLimit && (er.Error.Status == "RESOURCE_EXHAUSTED" || hasReason(reasons, "rateLimitExceeded")))

	switch {
	case status == http.StatusTooManyRequests:
		be.Kind = KindRateLimited
		if quota {
			be.Kind = KindQuotaExceeded
		}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		switch {
		case quota:
			be.Kind = KindQuotaExceeded
		case hasReason(reasons, "rateLimitExceeded", "userRateLimitExceeded"):
			be.Kind = KindRateLimited
		default:
			be.Kind = KindUnauthorized
		}
	case status == http.StatusBadRequest && hasReason(reasons, "keyInvalid", "API_KEY_INVALID"):
		be.Kind = KindUnauthorized
	case status >= http.StatusInternalServerError:
		be.Kind = KindNetworkFailure
	default:
		be.Kind = KindBadRequest
	}
	return be
}

// mentionsDailyLimit reports whether a quota limit name or message refers
// to a per-day limit, such as "Queries per day" or "QueriesPerDayPerProject".
func mentionsDailyLimit(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "per day") || strings.Contains(s, "perday")
}

func hasReason(reasons []string, want ...string) bool {
	for _, r := range reasons {
		for _, w := range want {
			if r == w {
				return true
			}
		}
	}
	return false
}

// redactKey removes the API key from the URL embedded in transport errors,
// which end up in console output and the run history.
func redactKey(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return err
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}
