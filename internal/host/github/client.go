package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Client issues GET requests with the headers GitHub expects. The zero value
// uses http.DefaultClient and sends no token.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Token     string
}

// UserAgent renders the User-Agent header value for version.
func UserAgent(version string) string {
	return fmt.Sprintf("thrushdeps/%s", version)
}

// Get issues a GET for rawURL. The bearer token is attached only for GitHub
// hosts so mirrors never see it. There is no client-side timeout: downloads of
// the toolchain archive may legitimately take minutes.
func (c *Client) Get(ctx context.Context, rawURL string, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.Token != "" && isGitHubHost(rawURL) {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	return hc.Do(req)
}

func isGitHubHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "github.com" || strings.HasSuffix(host, ".github.com") ||
		strings.HasSuffix(host, ".githubusercontent.com")
}
