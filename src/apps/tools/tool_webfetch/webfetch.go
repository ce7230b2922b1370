package tool_webfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/elee1766/chatmux/src/agent"
	"github.com/elee1766/chatmux/src/apps/toolsutil"
	"github.com/elee1766/chatmux/src/config"
)

// Tool name constant
const Name = "web_fetch"

const webFetchPrompt = `Fetches content from a URL and returns it in the specified format.

HOW TO USE:
- Provide the URL to fetch content from
- Specify the desired output format (text, markdown, or html)
- Optionally set a timeout in seconds for the request

LIMITATIONS:
- Only HTTP and HTTPS URLs permitted by the network policy can be fetched
- Responses larger than the configured limit are rejected
- Cannot handle authentication or cookies`

const (
	defaultTimeout = 30
	maxTimeout     = 120
	maxRedirects   = 10
)

// WebFetchInput represents the parameters for web_fetch
type WebFetchInput struct {
	URL     string `json:"url" required:"true" description:"The URL to fetch content from"`
	Format  string `json:"format" required:"true" enum:"text,markdown,html" description:"The format to return the content in"`
	Timeout int    `json:"timeout,omitempty" description:"Optional timeout in seconds (max 120, default 30)"`
}

// WebFetchOutput represents the response from web_fetch
type WebFetchOutput struct {
	Content     string            `json:"content"`
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers,omitempty"`
	URL         string            `json:"url"`
	ContentType string            `json:"content_type,omitempty"`
}

// Options configures the fetcher.
type Options struct {
	// Client is used for requests; a fresh client is built when nil
	Client          *http.Client
	Permissions     *config.PermissionChecker
	MaxResponseSize int64
	UserAgent       string
}

// Tool returns the web_fetch tool
func Tool(opts Options) (agent.Tool, error) {
	if opts.Permissions == nil {
		return nil, fmt.Errorf("web_fetch requires a permission checker")
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "chatmux/1.0"
	}
	if opts.MaxResponseSize <= 0 {
		opts.MaxResponseSize = 5 * 1024 * 1024
	}
	f := &fetcher{opts: opts}
	return agent.NewGenericTool(Name, webFetchPrompt, f.handle)
}

type fetcher struct {
	opts Options
}

func (f *fetcher) client(timeout time.Duration) *http.Client {
	c := &http.Client{}
	if f.opts.Client != nil {
		*c = *f.opts.Client
	}
	c.Timeout = timeout
	// redirects are re-checked against the network policy
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects")
		}
		return f.opts.Permissions.CheckNetworkPermission(req.URL.String()).Err()
	}
	return c
}

func (f *fetcher) handle(ctx context.Context, input WebFetchInput) (WebFetchOutput, error) {
	logger := toolsutil.GetLogger()

	format := strings.ToLower(input.Format)
	if format != "text" && format != "markdown" && format != "html" {
		return WebFetchOutput{}, fmt.Errorf("format must be one of: text, markdown, html")
	}
	if !strings.HasPrefix(input.URL, "http://") && !strings.HasPrefix(input.URL, "https://") {
		return WebFetchOutput{}, fmt.Errorf("URL must start with http:// or https://")
	}
	if err := f.opts.Permissions.CheckNetworkPermission(input.URL).Err(); err != nil {
		logger.Warn("fetch rejected", "url", input.URL, "error", err)
		return WebFetchOutput{}, err
	}

	timeout := input.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	} else if timeout > maxTimeout {
		timeout = maxTimeout
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return WebFetchOutput{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client(time.Duration(timeout) * time.Second).Do(req)
	if err != nil {
		return WebFetchOutput{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WebFetchOutput{}, fmt.Errorf("request failed with status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxResponseSize+1))
	if err != nil {
		return WebFetchOutput{}, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > f.opts.MaxResponseSize {
		return WebFetchOutput{}, fmt.Errorf("%w: limit is %s", toolsutil.ErrResponseTooLarge, toolsutil.FormatBytes(f.opts.MaxResponseSize))
	}

	content := string(body)
	contentType := resp.Header.Get("Content-Type")
	isHTML := strings.Contains(contentType, "text/html")

	processed := content
	switch format {
	case "text":
		if isHTML {
			if text, err := extractTextFromHTML(content); err != nil {
				logger.Warn("failed to extract text from HTML, returning raw content", "error", err)
			} else {
				processed = text
			}
		}
	case "markdown":
		switch {
		case isHTML:
			if markdown, err := convertHTMLToMarkdown(content); err != nil {
				logger.Warn("failed to convert HTML to Markdown, wrapping in code block", "error", err)
				processed = "```html\n" + content + "\n```"
			} else {
				processed = markdown
			}
		case strings.Contains(contentType, "application/json"):
			processed = "```json\n" + content + "\n```"
		default:
			processed = "```\n" + content + "\n```"
		}
	}

	headers := make(map[string]string)
	for _, key := range []string{"Content-Type", "Content-Length", "Last-Modified"} {
		if v := resp.Header.Get(key); v != "" {
			headers[key] = v
		}
	}

	logger.Info("fetched web content", "url", input.URL, "status", resp.StatusCode, "size", len(body), "format", format)

	return WebFetchOutput{
		Content:     processed,
		StatusCode:  resp.StatusCode,
		Headers:     headers,
		URL:         resp.Request.URL.String(),
		ContentType: contentType,
	}, nil
}

// extractTextFromHTML extracts plain text from HTML content
func extractTextFromHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var cleaned []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, "\n"), nil
}

// convertHTMLToMarkdown converts HTML content to Markdown
func convertHTMLToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	markdown, err := converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to Markdown: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	return strings.ReplaceAll(markdown, "\n\n\n", "\n\n"), nil
}
