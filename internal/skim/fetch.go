package skim

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads skim files published on an agency FTP server.
type Fetcher struct {
	timeout time.Duration
}

// NewFetcher creates a Fetcher; a zero timeout defaults to 30s.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{timeout: timeout}
}

// FetchToFile downloads an ftp:// URL to a local path and returns the bytes
// written. The file is left in place for LoadCSV.
func (f *Fetcher) FetchToFile(ctx context.Context, rawURL, path string) (int64, error) {
	host, remote, err := parseFTPURL(rawURL)
	if err != nil {
		return 0, err
	}

	zap.L().Debug("skim: fetching", zap.String("host", host), zap.String("path", remote))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, eris.Wrap(err, "skim: ftp dial")
	}
	defer func() { _ = conn.Quit() }()

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return 0, eris.Wrap(err, "skim: ftp login")
	}

	resp, err := conn.Retr(remote)
	if err != nil {
		return 0, eris.Wrap(err, "skim: ftp retrieve")
	}
	defer func() { _ = resp.Close() }()

	file, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "skim: create file")
	}
	defer func() { _ = file.Close() }()

	n, err := io.Copy(file, resp)
	if err != nil {
		return n, eris.Wrap(err, "skim: write file")
	}
	return n, nil
}

func parseFTPURL(rawURL string) (host, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "skim: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("skim: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	if u.Path == "" {
		return "", "", eris.New("skim: empty path in ftp url")
	}
	return host, u.Path, nil
}
