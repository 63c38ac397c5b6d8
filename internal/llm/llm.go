// Package llm generates the enhanced digest plan with Gemini. The model
// never writes facts into the digest; it groups already-curated items into
// sections, writes short leads, and proposes a subject line. Anything it
// returns is validated against the routed items before use, and any failure
// downgrades the run to a standard digest.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"citybrief/internal/config"
	"citybrief/internal/core"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-2.5-flash-preview-05-20"

// Client wraps the Gemini API for digest planning.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
}

// NewClient creates a Gemini client from config.
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}

	gClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := int32(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &Client{
		client:      gClient,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		timeout:     cfg.TimeoutDuration(),
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.client.Close()
}

// TextGenerationOptions controls a single generation call.
type TextGenerationOptions struct {
	Temperature    float32
	MaxTokens      int32
	ResponseSchema *genai.Schema // When set, forces structured JSON output
}

// GenerateText sends a prompt and returns the raw response text.
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	model := c.client.GenerativeModel(c.model)

	temperature := options.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	model.SetTemperature(temperature)

	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	model.SetMaxOutputTokens(maxTokens)

	if options.ResponseSchema != nil {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = options.ResponseSchema
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model returned an empty response")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", fmt.Errorf("model returned an unexpected part type")
	}
	return string(text), nil
}

// DigestPlan is the model's proposal for an enhanced digest: a subject line,
// a short overview, per-module sections referencing routed items by ID, and
// an optional looking-ahead note for upcoming windows.
type DigestPlan struct {
	Subject      string        `json:"subject"`
	Overview     string        `json:"overview"`
	Sections     []PlanSection `json:"sections"`
	LookingAhead string        `json:"looking_ahead"`
}

// PlanSection groups routed items under one module with a one-line lead.
type PlanSection struct {
	Module  string   `json:"module"`
	Lead    string   `json:"lead"`
	ItemIDs []string `json:"item_ids"`
}

// GenerateDigestPlan asks the model for an enhanced digest plan over the
// routed items. The returned plan has already passed validation; any error
// means the caller should fall back to a standard digest.
func (c *Client) GenerateDigestPlan(ctx context.Context, slot core.Slot, items []core.ContentItem) (*DigestPlan, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := buildDigestPrompt(slot, items)

	raw, err := c.GenerateText(ctx, prompt, TextGenerationOptions{
		ResponseSchema: digestPlanSchema(),
	})
	if err != nil {
		return nil, err
	}

	plan, err := parseDigestPlan(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateDigestPlan(plan, items); err != nil {
		return nil, err
	}
	return plan, nil
}

// buildDigestPrompt lists the routed items and the grouping rules.
func buildDigestPrompt(slot core.Slot, items []core.ContentItem) string {
	var prompt strings.Builder

	prompt.WriteString("You are assembling the " + string(slot) + " edition of CityBrief, a short New York City consumer briefing.\n\n")
	prompt.WriteString("**ITEMS (already curated, in priority order):**\n\n")

	for _, item := range items {
		prompt.WriteString(fmt.Sprintf("[%s] module=%s score=%d urgency=%s\n", item.ID, item.ModuleID, item.PriorityScore, item.UrgencyClass))
		prompt.WriteString(fmt.Sprintf("    Title: %s\n", item.Title))
		if item.Body != "" {
			excerpt := item.Body
			if len(excerpt) > 300 {
				excerpt = excerpt[:300] + "..."
			}
			prompt.WriteString(fmt.Sprintf("    Body: %s\n", excerpt))
		}
		if item.StartsAt != nil {
			prompt.WriteString(fmt.Sprintf("    Starts: %s\n", item.StartsAt.Format(time.RFC1123)))
		}
		if item.EndsAt != nil {
			prompt.WriteString(fmt.Sprintf("    Ends: %s\n", item.EndsAt.Format(time.RFC1123)))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("**TASK:**\n\n")
	prompt.WriteString("Group the items into sections by module and return JSON.\n\n")
	prompt.WriteString("Rules:\n")
	prompt.WriteString("- subject: one line, at most 78 characters, specific to today's items (no generic \"Your daily digest\")\n")
	prompt.WriteString("- overview: 1-2 plain sentences naming the most important item\n")
	prompt.WriteString("- sections: one per module that has items; lead is 1-2 sentences summarizing that section\n")
	prompt.WriteString("- item_ids: only IDs from the list above, each used at most once\n")
	prompt.WriteString("- looking_ahead: one sentence about items with a future start or end window, or empty\n")
	prompt.WriteString("- Never invent facts. Every claim must come from an item above.\n")

	return prompt.String()
}

// digestPlanSchema defines the structured output for the plan.
func digestPlanSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"subject": {
				Type:        genai.TypeString,
				Description: "Email subject line, at most 78 characters",
			},
			"overview": {
				Type:        genai.TypeString,
				Description: "1-2 sentence lead for the whole digest",
			},
			"sections": {
				Type:        genai.TypeArray,
				Description: "Per-module sections in display order",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"module": {
							Type:        genai.TypeString,
							Description: "Module ID the section covers",
						},
						"lead": {
							Type:        genai.TypeString,
							Description: "1-2 sentence section summary",
						},
						"item_ids": {
							Type:        genai.TypeArray,
							Description: "IDs of the items in this section",
							Items:       &genai.Schema{Type: genai.TypeString},
						},
					},
					Required: []string{"module", "lead", "item_ids"},
				},
			},
			"looking_ahead": {
				Type:        genai.TypeString,
				Description: "Optional note on upcoming windows",
			},
		},
		Required: []string{"subject", "sections"},
	}
}

func parseDigestPlan(raw string) (*DigestPlan, error) {
	var plan DigestPlan
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &plan); err != nil {
		return nil, fmt.Errorf("failed to parse digest plan: %w", err)
	}
	return &plan, nil
}

// ValidateDigestPlan rejects plans a standard digest would beat: empty
// subject or sections, leads with no text, references to items that were not
// routed, an item used twice, or a plan that covers too little of the slot.
func ValidateDigestPlan(plan *DigestPlan, items []core.ContentItem) error {
	if plan == nil {
		return fmt.Errorf("plan is nil")
	}
	if strings.TrimSpace(plan.Subject) == "" {
		return fmt.Errorf("plan has no subject")
	}
	if len(plan.Sections) == 0 {
		return fmt.Errorf("plan has no sections")
	}

	known := make(map[string]bool, len(items))
	for _, item := range items {
		known[item.ID] = true
	}

	seen := make(map[string]bool)
	for i, section := range plan.Sections {
		if strings.TrimSpace(section.Module) == "" {
			return fmt.Errorf("section %d has no module", i)
		}
		if strings.TrimSpace(section.Lead) == "" {
			return fmt.Errorf("section %d has no lead", i)
		}
		if len(section.ItemIDs) == 0 {
			return fmt.Errorf("section %d references no items", i)
		}
		for _, id := range section.ItemIDs {
			if !known[id] {
				return fmt.Errorf("section %d references unknown item %s", i, id)
			}
			if seen[id] {
				return fmt.Errorf("item %s appears in more than one section", id)
			}
			seen[id] = true
		}
	}

	// A plan that mentions almost nothing is worse than the standard layout.
	if len(seen) < 2 && len(seen) < len(items) {
		return fmt.Errorf("plan covers %d of %d items", len(seen), len(items))
	}
	return nil
}
