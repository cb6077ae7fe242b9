package e2etest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/clustereval/internal/errors"
)

// Client is a browser-like HTTP client that keeps cookies and posts the forms of the survey pages.
type Client struct {
	client *http.Client
	url    string
}

// NewClient creates a client for the server at url.
func NewClient(url string) (*Client, error) {
	jar, err := newUnsafeCookieJar()
	if err != nil {
		return nil, errors.Wrap(err, "create unsafe cookie jar")
	}
	return &Client{
		client: &http.Client{Jar: jar}, //nolint:exhaustruct // defaults
		url:    url,
	}, nil
}

// WaitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func (c *Client) WaitForReady(ctx context.Context, urlPath string) error {
	timeout := 1 * time.Second
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = c.newRequestWithContext(ctx, http.MethodGet, urlPath, nil); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = c.client.Do(req); err == nil {
			if resp.StatusCode == http.StatusOK {
				if err = resp.Body.Close(); err != nil {
					return errors.Wrap(err, "close response body")
				}
				return nil
			}
			if err = resp.Body.Close(); err != nil {
				return errors.Wrap(err, "close response body")
			}
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context cancelled")
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(100 * time.Millisecond) //nolint:mnd // 100ms
		}
	}
}

// Get fetches a URL and returns the response.
func (c *Client) Get(ctx context.Context, urlPath string) (*http.Response, error) {
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	if req, err = c.newRequestWithContext(ctx, http.MethodGet, urlPath, nil); err != nil {
		return nil, errors.Wrap(err, "create request with context")
	}
	if resp, err = c.client.Do(req); err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	return resp, nil
}

// GetDoc fetches a URL and returns a goquery document.
func (c *Client) GetDoc(ctx context.Context, urlPath string) (*goquery.Document, error) {
	resp, err := c.Get(ctx, urlPath)
	if err != nil {
		return nil, errors.Wrap(err, "client get")
	}
	return readDoc(resp, http.StatusOK)
}

// SubmitForm posts the form of doc whose action starts with formAction together with its hidden inputs and
// values. The form is posted to actionURLPath instead of its own action when actionURLPath is not empty, like a
// button with a formaction attribute. Redirects are followed and the final document must have wantStatus.
func (c *Client) SubmitForm(
	ctx context.Context,
	doc *goquery.Document,
	formAction string,
	actionURLPath string,
	values neturl.Values,
	wantStatus int,
) (*goquery.Document, error) {
	formSelector := fmt.Sprintf("form[action^='%s']", formAction)
	form := doc.Find(formSelector)
	if form.Length() != 1 {
		return nil, errors.New("form not found", slog.String("selector", formSelector))
	}
	if actionURLPath == "" {
		actionURLPath = form.AttrOr("action", "")
	}

	formData := neturl.Values{}
	form.Find("input[type=hidden]").Each(func(_ int, input *goquery.Selection) {
		formData.Set(input.AttrOr("name", ""), input.AttrOr("value", ""))
	})
	if formData.Get("csrf_token") == "" {
		return nil, errors.New("csrf_token not found", slog.String("selector", formSelector))
	}
	for key, vs := range values {
		formData[key] = vs
	}

	req, err := c.newRequestWithContext(ctx, http.MethodPost, actionURLPath, strings.NewReader(formData.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "create request with context")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request", slog.String("action", actionURLPath))
	}
	return readDoc(resp, wantStatus)
}

// StartSurvey opens the survey of expertID, gives consent and returns the page of the first task.
func (c *Client) StartSurvey(ctx context.Context, expertID string) (*goquery.Document, error) {
	query := "/?" + neturl.Values{"expert": {expertID}}.Encode()
	doc, err := c.GetDoc(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "get welcome page", slog.String("expert_id", expertID))
	}
	if doc, err = c.SubmitForm(ctx, doc, "/consent", "", neturl.Values{"consent": {"1"}}, http.StatusOK); err != nil {
		return nil, errors.Wrap(err, "give consent")
	}
	if doc.Find("form#task-form").Length() != 1 {
		return nil, errors.New("first task not shown", slog.String("expert_id", expertID))
	}
	return doc, nil
}

// newRequestWithContext creates a new HTTP request to the server that respects the given context.
func (c *Client) newRequestWithContext(
	ctx context.Context,
	method, urlPath string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url+urlPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	return req, nil
}

func readDoc(resp *http.Response, wantStatus int) (*goquery.Document, error) {
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != wantStatus {
		return nil, errors.New("unexpected status code",
			slog.Int("status", resp.StatusCode), slog.Int("want", wantStatus))
	}
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "create document from reader")
	}
	return doc, nil
}
