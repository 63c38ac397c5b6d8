// Package email renders digests to HTML and delivers them through the
// configured transactional endpoint. Dry-run mode writes the HTML to disk
// instead of sending.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"citybrief/internal/config"
	"citybrief/internal/core"
	"citybrief/internal/logger"
	"citybrief/internal/render"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// EmailTemplate holds the visual configuration for the HTML rendering.
type EmailTemplate struct {
	Name            string
	HeaderColor     string
	BackgroundColor string
	TextColor       string
	LinkColor       string
	BorderColor     string
	AccentColor     string
	MaxWidth        string
	FontFamily      string
}

// GetDefaultTemplate returns the CityBrief house style.
func GetDefaultTemplate() *EmailTemplate {
	return &EmailTemplate{
		Name:            "default",
		HeaderColor:     "#0f766e", // Teal-700
		BackgroundColor: "#f8fafc", // Slate-50
		TextColor:       "#1e293b", // Slate-800
		LinkColor:       "#0d9488", // Teal-600
		BorderColor:     "#e2e8f0", // Slate-200
		AccentColor:     "#dc2626", // Red-600, urgent badge
		MaxWidth:        "600px",
		FontFamily:      "system-ui, -apple-system, 'Segoe UI', Roboto, sans-serif",
	}
}

func emailCSS(tmpl *EmailTemplate) string {
	return fmt.Sprintf(`
  body { margin: 0; padding: 0; background-color: %s; color: %s; font-family: %s; -webkit-text-size-adjust: 100%%; }
  .container { max-width: %s; margin: 0 auto; padding: 16px; }
  .header { background-color: %s; color: #ffffff; padding: 20px 24px; border-radius: 8px 8px 0 0; }
  .header h1 { margin: 0; font-size: 22px; }
  .header p { margin: 4px 0 0; font-size: 13px; opacity: 0.9; }
  .body { background-color: #ffffff; border: 1px solid %s; border-top: none; border-radius: 0 0 8px 8px; padding: 8px 24px 16px; }
  .overview { font-size: 15px; line-height: 1.5; }
  .section h2 { font-size: 16px; border-bottom: 2px solid %s; padding-bottom: 4px; margin: 20px 0 8px; }
  .lead { font-size: 14px; color: #475569; margin: 0 0 8px; }
  .item { margin: 0 0 12px; }
  .item h3 { font-size: 14px; margin: 0 0 2px; }
  .item p { font-size: 13px; line-height: 1.45; margin: 0; color: #334155; }
  .item a { color: %s; text-decoration: none; }
  .badge { display: inline-block; background-color: %s; color: #ffffff; font-size: 10px; font-weight: 700; padding: 2px 6px; border-radius: 4px; margin-left: 6px; vertical-align: middle; }
  .looking-ahead { font-size: 13px; background-color: %s; border-radius: 6px; padding: 10px 12px; }
  .footer { font-size: 11px; color: #64748b; text-align: center; padding: 16px 0; }
`,
		tmpl.BackgroundColor, tmpl.TextColor, tmpl.FontFamily, tmpl.MaxWidth,
		tmpl.HeaderColor, tmpl.BorderColor, tmpl.BorderColor, tmpl.LinkColor,
		tmpl.AccentColor, tmpl.BackgroundColor)
}

const htmlTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Digest.Subject}}</title>
<style type="text/css">{{.CSS}}</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>CityBrief</h1>
    <p>{{.Digest.Date}} &middot; {{.SlotTitle}} Edition</p>
  </div>
  <div class="body">
    {{if .Digest.Overview}}<p class="overview">{{.Digest.Overview}}</p>{{end}}
    {{range .Digest.Sections}}
    <div class="section">
      <h2>{{.Title}}</h2>
      {{if .Lead}}<p class="lead">{{.Lead}}</p>{{end}}
      {{range .Items}}
      <div class="item">
        <h3>{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}{{if isUrgent .UrgencyClass}}<span class="badge">URGENT</span>{{end}}</h3>
        {{if .Body}}<p>{{excerpt .Body}}</p>{{end}}
      </div>
      {{end}}
    </div>
    {{end}}
    {{if .Digest.LookingAhead}}<p class="looking-ahead"><strong>Looking ahead:</strong> {{.Digest.LookingAhead}}</p>{{end}}
  </div>
  <div class="footer">
    <p>You're receiving CityBrief because you subscribed.<br>Manage your modules or unsubscribe any time.</p>
  </div>
</div>
</body>
</html>`

// RenderHTML renders a digest document with the given template.
func RenderHTML(digest render.Digest, tmpl *EmailTemplate) (string, error) {
	if tmpl == nil {
		tmpl = GetDefaultTemplate()
	}

	t, err := template.New("digest").Funcs(template.FuncMap{
		"isUrgent": func(c core.UrgencyClass) bool { return c == core.UrgencyUrgent },
		"excerpt": func(s string) string {
			runes := []rune(s)
			if len(runes) <= 280 {
				return s
			}
			return string(runes[:277]) + "..."
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	data := struct {
		Digest    render.Digest
		SlotTitle string
		CSS       template.CSS
	}{
		Digest:    digest,
		SlotTitle: render.SlotTitle(digest.Slot),
		CSS:       template.CSS(emailCSS(tmpl)),
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return buf.String(), nil
}

// WriteHTMLEmail writes rendered HTML to outputDir for dry runs and previews.
func WriteHTMLEmail(content, outputDir, filename string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outputDir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write email file: %w", err)
	}
	return path, nil
}

// SendResult is the delivery endpoint's answer for one message.
type SendResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type sendRequest struct {
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Text     string `json:"text,omitempty"`
}

// Client delivers rendered digests over the transactional HTTP endpoint.
type Client struct {
	endpoint    string
	token       string
	fromAddress string
	fromName    string
	dryRun      bool
	outputDir   string
	httpClient  *http.Client
	log         zerolog.Logger
}

// NewClient builds a delivery client from config. outputDir receives dry-run
// HTML files.
func NewClient(cfg config.Delivery, outputDir string) *Client {
	return &Client{
		endpoint:    cfg.Endpoint,
		token:       cfg.Token,
		fromAddress: cfg.FromAddress,
		fromName:    cfg.FromName,
		dryRun:      cfg.DryRun,
		outputDir:   outputDir,
		httpClient:  &http.Client{Timeout: cfg.TimeoutDuration()},
		log:         logger.With("email"),
	}
}

// DryRun reports whether the client writes files instead of sending.
func (c *Client) DryRun() bool {
	return c.dryRun
}

// Send delivers one message, or writes it to disk in dry-run mode.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody, textBody string) (*SendResult, error) {
	if c.dryRun {
		return c.sendDryRun(to, subject, htmlBody)
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("delivery endpoint not configured")
	}

	payload, err := json.Marshal(sendRequest{
		From:     c.fromAddress,
		FromName: c.fromName,
		To:       to,
		Subject:  subject,
		HTML:     htmlBody,
		Text:     textBody,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to deliver to %s: %w", to, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("delivery endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	result := &SendResult{Success: true}
	if err := json.Unmarshal(body, result); err != nil {
		// 2xx with an opaque body still counts as delivered
		result = &SendResult{ID: uuid.New().String(), Success: true}
	}
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	return result, nil
}

func (c *Client) sendDryRun(to, subject, htmlBody string) (*SendResult, error) {
	id := "dryrun-" + uuid.New().String()
	filename := fmt.Sprintf("%s-%s.html", time.Now().Format("20060102-150405"), sanitize(to))

	path, err := WriteHTMLEmail(htmlBody, c.outputDir, filename)
	if err != nil {
		return nil, err
	}
	c.log.Info().Str("to", to).Str("subject", subject).Str("file", path).Msg("dry run, wrote digest to disk")
	return &SendResult{ID: id, Success: true, Message: path}, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
