// Package fetcher moves census inputs from the network to disk or memory:
// rate-limited HTTP downloads, selective ZIP extraction, and the JSON
// tables the Census Data API answers with.
package fetcher

import (
	"context"
	"io"
)

// Fetcher retrieves a remote resource. Implementations retry transient
// failures and throttle per host; callers see only the final outcome.
type Fetcher interface {
	// Download returns the body of a 200 response. The caller closes it.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile writes the body to path, which either holds the
	// complete body afterwards or is left untouched. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}
