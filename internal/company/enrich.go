package company

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

const (
	// maxPageSize caps how much of a profile page we read.
	maxPageSize = 2 << 20

	// maxDescription caps the background text fed into a prompt template.
	maxDescription = 4000
)

// FallbackDescription fills the background placeholder when no profile
// text could be fetched. Templates always receive a description value.
const FallbackDescription = "No additional background is available. Speak from the company name and general industry knowledge only."

// FetchDescription downloads the company profile page and extracts its
// readable text for use as prompt background. Best-effort: callers are
// expected to fall back to FallbackDescription on any error.
func FetchDescription(ctx context.Context, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid profile URL %s: %w", ref, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("build profile request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch profile %s: %w", ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch profile %s: HTTP %d", ref, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxPageSize)
	article, err := readability.FromReader(limited, parsed)
	if err != nil {
		return "", fmt.Errorf("extract profile text from %s: %w", ref, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", ref)
	}
	if len(text) > maxDescription {
		text = text[:maxDescription]
	}
	return text, nil
}
