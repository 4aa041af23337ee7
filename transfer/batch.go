package transfer

import (
	"context"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Outcome is the result of one member of a batch download.
type Outcome struct {
	URL   string
	Path  string
	Bytes int64
	Err   error
}

// FetchBatch downloads every url concurrently into folder, one goroutine per
// url, and waits for all of them. A failing download does not cancel its
// siblings. Outcomes are returned in the order of urls; if any of them
// failed the returned error is a *BatchError.
func (c *Client) FetchBatch(ctx context.Context, urls []string, folder string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(urls))

	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			outcomes[i] = c.fetchInto(ctx, u, folder)
		}(i, u)
	}
	wg.Wait()

	var failed []Outcome
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"files":  len(urls),
		"failed": len(failed),
		"folder": folder,
	}).Debug("batch download finished")

	if len(failed) > 0 {
		return outcomes, &BatchError{Failed: failed}
	}
	return outcomes, nil
}

func (c *Client) fetchInto(ctx context.Context, u, folder string) Outcome {
	out := Outcome{URL: u}

	name := FileName(u)
	if name == "" {
		out.Err = &TransferError{URL: u, Err: errors.New("url has no file name")}
		return out
	}
	out.Path = filepath.Join(folder, name)

	out.Bytes, out.Err = c.FetchToFile(ctx, u, out.Path, name, nil)
	return out
}

// FileName returns the last path segment of rawURL, ignoring any query or
// fragment. It returns "" when there is no usable segment.
func FileName(rawURL string) string {
	p := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		p = parsed.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}
