package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docextract/internal/cost"
)

// Claude is the production oracle, backed by the Anthropic API.
type Claude struct {
	client    sdk.Client
	model     string
	maxTokens int64
	fields    []string
	calc      *cost.Calculator
}

// NewClaude creates a Claude oracle that extracts the given fields.
func NewClaude(apiKey, model string, maxTokens int64, fields []string, calc *cost.Calculator) *Claude {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &Claude{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
		fields:    fields,
		calc:      calc,
	}
}

const systemPrompt = `You extract structured fields from semi-structured business documents.
Respond with a single JSON object and nothing else. Use null for fields that
are absent from the document. Dates use YYYY-MM-DD; amounts are plain decimal
numbers without currency symbols or thousands separators.`

func (c *Claude) Extract(ctx context.Context, doc Document) (*Result, error) {
	prompt := fmt.Sprintf(
		"Extract these fields from the document below: %s\n\n---\n%s",
		strings.Join(c.fields, ", "), doc.RawText,
	)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "oracle: extract %s", doc.Source)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	fields, err := parseFields(text)
	if err != nil {
		return nil, eris.Wrapf(err, "oracle: parse response for %s", doc.Source)
	}

	res := &Result{
		Fields:       fields,
		Model:        string(msg.Model),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}
	res.CostUSD = c.calc.OracleCall(res.Model, res.InputTokens, res.OutputTokens)

	zap.L().Debug("oracle extraction complete",
		zap.String("source", doc.Source),
		zap.String("model", res.Model),
		zap.Int("fields", len(fields)),
		zap.Float64("cost_usd", res.CostUSD),
	)
	return res, nil
}

// parseFields decodes the model's JSON object leniently: code fences are
// stripped and scalar values are stringified. Null and empty values are
// dropped so unlocatable fields never reach the synthesizer.
func parseFields(text string) (map[string]string, error) {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return nil, eris.New("empty response")
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "decode json")
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			// absent field
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out[k] = s
			}
		case json.Number:
			out[k] = val.String()
		case bool:
			out[k] = fmt.Sprintf("%v", val)
		default:
			// nested structures (line items etc.) are not template-learnable
		}
	}
	return out, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
