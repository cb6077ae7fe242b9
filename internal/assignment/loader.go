package assignment

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/myrjola/clustereval/internal/errors"
)

var expertIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidExpert is returned for expert identifiers that cannot name an assignment file.
var ErrInvalidExpert = errors.NewSentinel("invalid expert identifier")

// ValidExpertID reports whether id is safe to use as an assignment file name.
func ValidExpertID(id string) bool {
	return expertIDPattern.MatchString(id)
}

// LoadError blocks the survey from starting. Resource names the file or URL that could not be loaded.
type LoadError struct {
	Resource string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load assignment %s: %v", e.Resource, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Loader fetches the assignment of an expert.
type Loader interface {
	Load(ctx context.Context, expertID string) (*Assignment, error)
}

// FSLoader reads {expertID}.json files from a file system.
type FSLoader struct {
	fsys fs.FS
	dir  string
}

// NewFSLoader returns a loader reading assignment files from dir.
func NewFSLoader(dir string) *FSLoader {
	return &FSLoader{fsys: os.DirFS(dir), dir: dir}
}

func (l *FSLoader) Load(_ context.Context, expertID string) (*Assignment, error) {
	name := expertID + ".json"
	if !ValidExpertID(expertID) {
		return nil, &LoadError{Resource: name, Err: ErrInvalidExpert}
	}
	resource := strings.TrimSuffix(l.dir, "/") + "/" + name
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return nil, &LoadError{Resource: resource, Err: errors.Wrap(err, "read assignment file")}
	}
	a, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Resource: resource, Err: err}
	}
	return a, nil
}

// HTTPLoader fetches {baseURL}/{expertID}.json with a cache-busting query parameter.
type HTTPLoader struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
	logger  *slog.Logger
}

// NewHTTPLoader returns a loader for assignment files served under baseURL. A nil client means
// [http.DefaultClient].
func NewHTTPLoader(baseURL string, client *http.Client, logger *slog.Logger) *HTTPLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLoader{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		now:     time.Now,
		logger:  logger,
	}
}

func (l *HTTPLoader) Load(ctx context.Context, expertID string) (*Assignment, error) {
	resource := fmt.Sprintf("%s/%s.json", l.baseURL, url.PathEscape(expertID))
	if !ValidExpertID(expertID) {
		return nil, &LoadError{Resource: resource, Err: ErrInvalidExpert}
	}
	data, err := l.fetch(ctx, resource)
	if err != nil {
		return nil, &LoadError{Resource: resource, Err: err}
	}
	a, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Resource: resource, Err: err}
	}
	return a, nil
}

func (l *HTTPLoader) fetch(ctx context.Context, resource string) ([]byte, error) {
	u := resource + "?v=" + strconv.FormatInt(l.now().UnixNano(), 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch assignment")
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			l.logger.LogAttrs(ctx, slog.LevelWarn, "failed to close response body", errors.SlogError(closeErr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New("unexpected status", slog.Int("status", resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	return data, nil
}
