package subscription

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/vertextoedge/subscription-archiver/internal/domain"
	"github.com/vertextoedge/subscription-archiver/internal/port"
)

// Fetcher downloads section assets under the retry policy
type Fetcher struct {
	retrier    *retrier
	jar        port.SessionJar
	logger     *zap.Logger
	bufferSize int
}

// Ensure Fetcher implements port.AssetFetcher
var _ port.AssetFetcher = (*Fetcher)(nil)

// NewFetcher creates a new asset fetcher.
// jar is only read; assets never add cookies to the session.
func NewFetcher(httpClient *http.Client, policy Policy, jar port.SessionJar, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Fetcher{
		retrier:    newRetrier(httpClient, policy, logger),
		jar:        jar,
		logger:     logger,
		bufferSize: 1024 * 1024,
	}
}

// Fetch performs the task. Buffered tasks return the body; others stream to
// task.Destination, truncating any partial file from a previous attempt.
func (f *Fetcher) Fetch(ctx context.Context, task domain.DownloadTask) ([]byte, error) {
	req := request{
		method: http.MethodGet,
		url:    task.URL,
		header: task.Header,
		jar:    f.jar,
	}
	if !task.Buffered() {
		req.handle = func(resp *http.Response) ([]byte, error) {
			return nil, f.stream(resp.Body, task.Destination)
		}
	}

	body, err := f.retrier.do(ctx, req)
	if err != nil {
		f.logger.Error("download failed",
			zap.String("url", task.URL),
			zap.String("destination", task.Destination),
			zap.Bool("caption", task.Caption),
			zap.Error(err))
		return nil, err
	}

	f.logger.Debug("asset downloaded",
		zap.String("url", task.URL),
		zap.String("destination", task.Destination),
		zap.Bool("buffered", task.Buffered()),
		zap.Bool("caption", task.Caption))
	return body, nil
}

func (f *Fetcher) stream(body io.Reader, destination string) error {
	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destination, err)
	}

	buf := make([]byte, f.bufferSize)
	if _, err := io.CopyBuffer(out, body, buf); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", destination, err)
	}
	return nil
}
