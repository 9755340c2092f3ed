package hds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"hdsfetch/internal/fault"
	"hdsfetch/internal/logger"

	"github.com/samber/mo"
)

// Doer issues HTTP requests. Implementations report non-200 responses as
// errors, so a returned response is always a success.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client is the HDS client responsible for all communication with the origin server.
type Client struct {
	transport Doer
	logger    logger.Logger
}

// NewClient creates a new HDS client over the given transport.
func NewClient(transport Doer, log logger.Logger) *Client {
	return &Client{
		transport: transport,
		logger:    log,
	}
}

// ManifestURL builds {base}{mediaPath}/manifest.f4m?hdcore, adding the
// delivery token as hdnea when one is supplied.
func ManifestURL(base, mediaPath string, hdnea mo.Option[string]) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL '%s': %w", base, err)
	}
	file := mediaPath + "/manifest.f4m?hdcore"
	if token, ok := hdnea.Get(); ok && token != "" {
		file += "&hdnea=" + EncodeParam(token)
	}
	u, err := resolveURL(baseURL, file)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Open issues a GET and returns the response body. The caller closes it.
func (c *Client) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", rawURL, err)
	}
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := c.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fault.Transport(err, "failed to read response body from %s", rawURL)
	}
	return data, nil
}

// FetchManifest fetches and parses the F4M manifest at manifestURL.
func (c *Client) FetchManifest(ctx context.Context, manifestURL string) (*Manifest, error) {
	c.logger.Debugf("Fetching manifest from URL: %s", manifestURL)

	data, err := c.get(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}
	m, err := ParseManifest(data, manifestURL)
	if err != nil {
		c.logger.Errorf("Failed to parse manifest from %s: %v", manifestURL, err)
		return nil, err
	}

	c.logger.Debugf("Parsed manifest with %d media entries, base URL %s", len(m.Media), m.BaseURL)
	return m, nil
}

// FetchBootstrap returns the parsed bootstrap for media, fetching it from
// its own URL when it is not inline. The verification query, if any, is
// sent with that request.
func (c *Client) FetchBootstrap(ctx context.Context, m *Manifest, media *MediaEntry, query mo.Option[string]) (*Bootstrap, error) {
	info := media.Bootstrap
	if info == nil {
		return nil, fault.Lookup("media %q has no bootstrapInfo", media.URL)
	}

	data := info.Data
	if ref, ok := info.URL.Get(); ok {
		base, err := url.Parse(m.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse manifest base URL '%s': %w", m.BaseURL, err)
		}
		u, err := resolveURL(base, ref)
		if err != nil {
			return nil, err
		}
		if q, ok := query.Get(); ok {
			u = u.ResolveReference(&url.URL{RawQuery: q})
		}

		c.logger.Debugf("Fetching bootstrap %q from URL: %s", info.ID, u.Redacted())
		if data, err = c.get(ctx, u.String()); err != nil {
			return nil, fmt.Errorf("failed to fetch bootstrap: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, fault.Lookup("bootstrapInfo %q has neither data nor url", info.ID)
	}

	b, err := ParseBootstrap(data)
	if err != nil {
		return nil, fmt.Errorf("bootstrap %q: %w", info.ID, err)
	}
	c.logger.Debugf("Bootstrap %q: movie %q, quality %q, %d segment runs, %d fragment runs",
		info.ID, b.MovieIdentifier, b.HighestQuality.OrEmpty(), len(b.SegmentRuns), len(b.FragmentRuns))
	return b, nil
}

// MediaURL builds the prefix fragment URLs are appended to: the media url,
// movie identifier and highest quality, resolved against the server base
// URL and then the manifest base URL.
func MediaURL(m *Manifest, media *MediaEntry, b *Bootstrap) (string, error) {
	ref := media.URL + b.MovieIdentifier + b.HighestQuality.OrEmpty()

	base, err := url.Parse(m.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse manifest base URL '%s': %w", m.BaseURL, err)
	}
	if server, ok := b.ServerBaseURL.Get(); ok {
		if base, err = resolveURL(base, server); err != nil {
			return "", err
		}
	}
	u, err := resolveURL(base, ref)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// resolveURL resolves a path against a base URL, handling potential errors.
func resolveURL(base *url.URL, path string) (*url.URL, error) {
	resolvedPath, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse path '%s': %w", path, err)
	}
	return base.ResolveReference(resolvedPath), nil
}
