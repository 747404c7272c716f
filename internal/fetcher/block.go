package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// blockPeekSize is how much of an HTML body is inspected for challenge markers.
const blockPeekSize = 4096

// BlockType describes the kind of anti-bot response detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// BlockedError reports a download answered by an anti-bot page instead of
// the record file. It is never retried.
type BlockedError struct {
	URL  string
	Kind BlockType
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("download %s blocked (%s)", e.URL, e.Kind)
}

// DetectBlock checks a response and the head of its body for signs of
// anti-bot protection.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-mitigated") != "" ||
			strings.EqualFold(resp.Header.Get("Server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "checking your browser"),
		strings.Contains(lower, "cf-browser-verification"),
		strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge"):
		return BlockCloudflare
	case strings.Contains(lower, "captcha"):
		return BlockCaptcha
	}

	// A tiny page that only asks for javascript or redirects itself.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}
	return BlockNone
}

// isHTML reports whether the response declares an HTML body. Record feeds
// are JSON, CSV or XLSX, so only HTML answers are inspected.
func isHTML(resp *http.Response) bool {
	return strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "text/html")
}

// peekedBody replays the inspected prefix before the rest of the body.
type peekedBody struct {
	*bufio.Reader
	io.Closer
}

// checkBlocked inspects an HTML body without consuming it. It returns a
// BlockedError, or a reader positioned at the start of the body.
func checkBlocked(rawURL string, resp *http.Response) (io.ReadCloser, error) {
	br := bufio.NewReaderSize(resp.Body, blockPeekSize)
	head, _ := br.Peek(blockPeekSize)
	if kind := DetectBlock(resp, head); kind != BlockNone {
		resp.Body.Close() //nolint:errcheck
		return nil, &BlockedError{URL: rawURL, Kind: kind}
	}
	return peekedBody{Reader: br, Closer: resp.Body}, nil
}
