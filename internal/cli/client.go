package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ab/release-server/internal/version"
)

// ErrNotFound is returned when the server has no file under the requested name.
var ErrNotFound = errors.New("file not found on server")

const maxEnvelopeSize = 1 << 20

// Client talks to a release server. BaseURL includes the context path.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient resolves the server URL from the argument, then the config
// file, then DefaultServer.
func NewClient(server string) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if server == "" {
		server = cfg.Server
	}
	if server == "" {
		server = DefaultServer
	}
	if err := validateServer(server); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(server, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}, nil
}

func validateServer(server string) error {
	u, err := url.Parse(server)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server URL %q", server)
	}
	return nil
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// LatestVersion fetches the published release descriptor.
func (c *Client) LatestVersion(ctx context.Context) (version.Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/jt808/get_version.json", nil)
	if err != nil {
		return version.Descriptor{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return version.Descriptor{}, fmt.Errorf("version check failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxEnvelopeSize)).Decode(&env); err != nil {
		return version.Descriptor{}, fmt.Errorf("version check failed: %s: %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK || env.Code != http.StatusOK {
		return version.Descriptor{}, fmt.Errorf("version check failed: %d %s", env.Code, env.Message)
	}
	var d version.Descriptor
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return version.Descriptor{}, fmt.Errorf("version check failed: %w", err)
	}
	return d, nil
}

// Download fetches name into dir and returns the written path and size. The
// local file name comes from the server's Content-Disposition header.
func (c *Client) Download(ctx context.Context, name, dir string) (string, int64, error) {
	q := url.Values{"filename": {name}}
	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/download/file?"+q.Encode(), nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	default:
		return "", 0, fmt.Errorf("download failed: %s", resp.Status)
	}

	dest := filepath.Join(dir, attachmentName(resp.Header.Get("Content-Disposition"), name))
	tmp, err := os.CreateTemp(dir, ".fetch-*")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(tmp, resp.Body)
	if err == nil && resp.ContentLength >= 0 && n != resp.ContentLength {
		err = fmt.Errorf("short read: got %d of %d bytes", n, resp.ContentLength)
	}
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("download failed: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", 0, err
	}
	return dest, n, nil
}

// attachmentName picks a safe local base name from a Content-Disposition
// header, falling back to the requested name.
func attachmentName(header, fallback string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(header); err == nil {
		name = params["filename"]
	}
	if name == "" {
		name = fallback
	}
	name = filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, `\`, "/")))
	if name == "/" || name == "." || name == ".." {
		return "download"
	}
	return name
}
