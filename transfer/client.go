package transfer

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ChunkSize is the number of bytes read from a response body per step.
const ChunkSize = 1024

// ProgressFunc is called after every chunk with the cumulative number of
// bytes received and the announced total, which is -1 when the server
// did not send a content length.
type ProgressFunc func(received, total int64)

// Client fetches remote files. A zero retry count (the default) means a
// failed request is reported immediately.
type Client struct {
	http    *retryablehttp.Client
	logger  logrus.FieldLogger
	metrics *Metrics
}

type Option func(*Client)

// WithRetries sets how many times a failed request is retried.
func WithRetries(retries int) Option {
	return func(c *Client) {
		if retries < 0 {
			retries = 0
		}
		c.http.RetryMax = retries
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		c.logger = logger
		c.http.Logger = leveledLogger{logger: logger}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithHTTPClient replaces the underlying http.Client, mostly useful to
// plug in a mocked transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

func NewClient(opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	// keep the last response around so a bad status can be reported
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	logger := logrus.StandardLogger()
	rc.Logger = leveledLogger{logger: logger}

	c := &Client{
		http:   rc,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CloseIdleConnections releases pooled connections held by the client.
func (c *Client) CloseIdleConnections() {
	c.http.HTTPClient.CloseIdleConnections()
}

// Fetch streams the resource at url into w in ChunkSize pieces and returns
// the number of bytes written. label is only used for logging and defaults
// to the file name of the url.
func (c *Client) Fetch(ctx context.Context, url string, w io.Writer, label string,
	progress ProgressFunc,
) (int64, error) {
	if label == "" {
		label = FileName(url)
	}
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, c.fail(&TransferError{URL: url, Err: err})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		te := &TransferError{URL: url, Err: err}
		if resp != nil {
			te.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		return 0, c.fail(te)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, c.fail(&TransferError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected status %s", resp.Status),
		})
	}

	total := resp.ContentLength
	buf := make([]byte, ChunkSize)
	var received int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return received, c.fail(&TransferError{URL: url, StatusCode: resp.StatusCode,
					Err: errors.Wrap(err, "write chunk")})
			}
			received += int64(n)
			c.metrics.addBytes(n)
			if progress != nil {
				progress(received, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return received, c.fail(&TransferError{URL: url, StatusCode: resp.StatusCode, Err: readErr})
		}
	}

	c.metrics.done(time.Since(start))
	c.logger.WithFields(logrus.Fields{
		"file":     label,
		"size":     humanize.IBytes(uint64(received)),
		"duration": time.Since(start),
	}).Debug("download finished")

	return received, nil
}

// FetchToFile downloads url into the file at path, creating or truncating
// it. The partial file is removed when the download fails.
func (c *Client) FetchToFile(ctx context.Context, url, path, label string,
	progress ProgressFunc,
) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, errors.Wrapf(err, "create %q", path)
	}

	n, err := c.Fetch(ctx, url, f, label, progress)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = errors.Wrapf(closeErr, "close %q", path)
	}
	if err != nil {
		os.Remove(path)
		return n, err
	}
	return n, nil
}

func (c *Client) fail(err *TransferError) error {
	c.metrics.failed()
	c.logger.WithError(err.Err).WithFields(logrus.Fields{
		"url":    err.URL,
		"status": err.StatusCode,
	}).Warn("download failed")
	return err
}
