// Package llm implements the LLM second-pass client: a hand-rolled
// net/http wrapper over a chat-completions endpoint, grounded on the
// teacher's platform/openai client (request/response shape, context
// timeout idiom), trimmed to the single JSON-object extraction call this
// system needs.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/riverdock/contractdesk/internal/domain/errs"
	"github.com/riverdock/contractdesk/internal/platform/logger"
	"github.com/riverdock/contractdesk/internal/platform/otelx"
)

// Config names the LLM endpoint this client posts to.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client posts extraction requests to an OpenAI-compatible chat-completions
// endpoint and parses the JSON-object response.
type Client struct {
	log  *logger.Logger
	cfg  Config
	http *http.Client
}

// New builds a Client. A zero cfg.Timeout defaults to 120s, the timeout
// named for the LLM boundary.
func New(log *logger.Logger, cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		log:  log.With("component", "llm"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// Extraction is the LLM second pass's structured output shape, matching
// the deterministic parser's output so the two can be diffed.
type Extraction struct {
	Clauses  []ExtractedClause `json:"clauses"`
	FamilyID string            `json:"family_id,omitempty"`
}

// ExtractedClause is one clause as produced by the LLM second pass.
type ExtractedClause struct {
	ClauseID   string            `json:"clause_id"`
	Category   string            `json:"category"`
	Parameter  string            `json:"parameter,omitempty"`
	Operator   string            `json:"operator,omitempty"`
	Value      float64           `json:"value,omitempty"`
	ValueUpper float64           `json:"value_upper,omitempty"`
	Unit       string            `json:"unit,omitempty"`
	SectionRef string            `json:"section_ref,omitempty"`
	Confidence string            `json:"confidence"`
	Fields     map[string]string `json:"fields,omitempty"`
}

// CrossCheck submits the document text plus a serialised clause inventory
// and family catalogue, and parses the model's JSON-object reply into an
// Extraction. The caller (Ingestor) treats this purely as a second opinion;
// it never overrides the deterministic parser's output on its own.
func (c *Client) CrossCheck(ctx context.Context, docText string, clauseInventory, familyCatalogue []string) (result *Extraction, err error) {
	ctx, end := otelx.StartIOSpan(ctx, "llm", "cross_check")
	defer func() { end(err) }()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	prompt := buildPrompt(docText, clauseInventory, familyCatalogue)
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		ResponseFormat: responseFormat{Type: "json_object"},
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errs.New(errs.LLMError, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, errs.New(errs.LLMError, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errs.New(errs.LLMError, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.LLMError, "read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.RemoteApiErr(resp.StatusCode, string(body), nil)
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, errs.New(errs.LLMError, "unmarshal chat response", err)
	}
	if len(cr.Choices) == 0 {
		return nil, errs.New(errs.LLMError, "empty choices", nil)
	}

	var ext Extraction
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &ext); err != nil {
		return nil, errs.New(errs.LLMError, "unmarshal extraction content", err)
	}
	return &ext, nil
}

func buildPrompt(docText string, clauseInventory, familyCatalogue []string) string {
	return fmt.Sprintf(
		"Extract structured clauses from the following contract text.\nKnown clause types: %v\nKnown families: %v\nReturn JSON matching the extraction schema.\n\n%s",
		clauseInventory, familyCatalogue, docText,
	)
}
