// Package update asks GitHub whether a newer release is published.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	releasesURL  = "https://api.github.com/repos/matheuskafuri/cryptonews/releases/latest"
	checkTimeout = 5 * time.Second
)

// Result holds the outcome of a version check.
type Result struct {
	Current  string
	Latest   string
	URL      string
	Outdated bool
}

type ghRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

type Checker struct {
	URL    string
	Client *http.Client
}

func NewChecker() *Checker {
	return &Checker{URL: releasesURL, Client: &http.Client{Timeout: checkTimeout}}
}

// Check fetches the latest release and compares its tag with currentVersion.
// Development builds are never reported as outdated.
func (c *Checker) Check(ctx context.Context, currentVersion string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checking latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("checking latest release: unexpected status %s", resp.Status)
	}

	var release ghRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(currentVersion, "v")
	if latest == "" {
		return nil, fmt.Errorf("latest release has no tag")
	}

	return &Result{
		Current:  current,
		Latest:   latest,
		URL:      release.HTMLURL,
		Outdated: current != "dev" && latest != current,
	}, nil
}
