package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	url2 "net/url"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/myrjola/clustereval/internal/errors"
	"github.com/myrjola/clustereval/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitForReady calls the specified endpoint until it gets a HTTP 200 Success
// response or until the context is cancelled or the 1-second timeout is reached.
func waitForReady(ctx context.Context, endpoint string) error {
	timeout := 1 * time.Second
	client := http.Client{} //nolint:exhaustruct // defaults
	startTime := time.Now()
	var (
		err  error
		req  *http.Request
		resp *http.Response
	)
	for {
		if req, err = http.NewRequestWithContext(
			ctx,
			http.MethodGet,
			endpoint,
			nil,
		); err != nil {
			return errors.Wrap(err, "create request")
		}

		if resp, err = client.Do(req); err == nil {
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
			return ctx.Err()
		default:
			if time.Since(startTime) >= timeout {
				return errors.New("timeout waiting for endpoint to be ready")
			}
			time.Sleep(250 * time.Millisecond)
		}
	}
}

func testLookupEnv(key string) (string, bool) {
	switch key {
	case "CLUSTEREVAL_ADDR":
		return "localhost:0", true
	case "CLUSTEREVAL_SQLITE_URL":
		return ":memory:", true
	case "CLUSTEREVAL_ASSIGNMENTS_DIR":
		return "testdata/assignments", true
	case "CLUSTEREVAL_EXPERTS":
		return "E1,E2", true
	case "CLUSTEREVAL_APP_VERSION":
		return "test", true
	default:
		return "", false
	}
}

type testServer struct {
	url    string
	client http.Client
}

// startTestServer starts the test server, waits for it to be ready, and return the server URL for testing.
func startTestServer(t *testing.T, w io.Writer, lookupEnv func(string) (string, bool)) testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// We need to grab the dynamically allocated port from the log output.
	addrCh := make(chan string, 1)
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource: false,
		Level:     slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == "Addr" {
				addrCh <- a.Value.String()
			}
			return a
		},
	})))

	// Start the server and wait for it to be ready.
	go func() {
		if err := run(ctx, logger, lookupEnv); err != nil {
			cancel()
			assert.NoError(t, err)
		}
	}()
	select {
	case <-ctx.Done():
		t.Fatal("server failed to start")
		return testServer{} //nolint:exhaustruct // This is unreachable.
	case addr := <-addrCh:
		serverURL := fmt.Sprintf("http://%s", addr)
		if err := waitForReady(ctx, fmt.Sprintf("%s/api/healthy", serverURL)); err != nil {
			require.NoError(t, err)
		}
		jar, err := newUnsafeCookieJar()
		require.NoError(t, err)
		return testServer{
			url:    serverURL,
			client: http.Client{Jar: jar}, //nolint:exhaustruct // defaults
		}
	}
}

// Get fetches a URL and returns the response.
func (s *testServer) Get(t *testing.T, urlPath string) *http.Response {
	t.Helper()
	resp, err := s.client.Get(s.url + urlPath)
	require.NoError(t, err)
	return resp
}

// GetDoc fetches a URL and returns a goquery document.
func (s *testServer) GetDoc(t *testing.T, urlPath string) *goquery.Document {
	t.Helper()
	resp := s.Get(t, urlPath)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return readDoc(t, resp)
}

// Post sends a form to the server with the given extra headers.
func (s *testServer) Post(t *testing.T, urlPath string, data url2.Values, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.url+urlPath, strings.NewReader(data.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	resp, err := s.client.Do(req)
	require.NoError(t, err)
	return resp
}

// SubmitForm posts the form whose action starts with formAction to actionURLPath, or to the form action when
// actionURLPath is empty. The hidden inputs and the CSRF token of the form are posted together with values.
func (s *testServer) SubmitForm(
	t *testing.T,
	doc *goquery.Document,
	formAction string,
	actionURLPath string,
	values url2.Values,
) *http.Response {
	t.Helper()
	html, err := doc.Html()
	require.NoError(t, err)

	formSelector := fmt.Sprintf("form[action^='%s']", formAction)
	form := doc.Find(formSelector)
	require.Equal(t, 1, form.Length(), "form %s not found in document:\n%s", formSelector, html)
	if actionURLPath == "" {
		var ok bool
		actionURLPath, ok = form.Attr("action")
		require.True(t, ok)
	}

	formData := url2.Values{}
	form.Find("input[type=hidden]").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		value, _ := input.Attr("value")
		formData.Set(name, value)
	})
	require.NotEmpty(t, formData.Get("csrf_token"), "csrf_token not found in form %s", formSelector)
	for key, vs := range values {
		formData[key] = vs
	}

	return s.Post(t, actionURLPath, formData, nil)
}

func readDoc(t *testing.T, resp *http.Response) *goquery.Document {
	t.Helper()
	defer func() {
		err := resp.Body.Close()
		require.NoError(t, err)
	}()
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	require.NoError(t, err)
	return doc
}
