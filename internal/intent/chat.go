package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const systemPrompt = `You translate user messages about GMX token trading into JSON.
Reply with a single JSON object and nothing else. Schema:
{"kind":"trade","token_in":"ETH","token_out":"USDC","amount_in":"1.5","slippage":"0.02"}
{"kind":"alert","token":"ETH","threshold":"0.05","slippage":"0.02"}
Amounts and fractions are decimal strings. threshold is the price-drop
fraction that should trigger the alert. Omit slippage when the user gave
none. Known token symbols: %s. If the message is not a trade or alert
request, reply {"kind":"none"}.`

// ChatOptions parameterise the chat-completions parser.
type ChatOptions struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	Timeout     time.Duration
	Symbols     []string
}

// ChatParser delegates intent parsing to an OpenAI-compatible
// chat-completions endpoint (Groq or Deepseek).
type ChatParser struct {
	opts    ChatOptions
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewChatParser builds a parser for the configured provider.
func NewChatParser(opts ChatOptions, logger zerolog.Logger) (*ChatParser, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("intent: api key required for provider %q", opts.Provider)
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, fmt.Errorf("intent: model required for provider %q", opts.Provider)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
		case "groq":
			baseURL = "https://api.groq.com/openai/v1"
		case "deepseek":
			baseURL = "https://api.deepseek.com/v1"
		default:
			return nil, fmt.Errorf("intent: unknown provider %q and no base_url configured", opts.Provider)
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ChatParser{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "intent_parser").Logger(),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// envelope is the raw JSON shape the model is asked to produce.
type envelope struct {
	Kind      string `json:"kind"`
	TokenIn   string `json:"token_in"`
	TokenOut  string `json:"token_out"`
	AmountIn  string `json:"amount_in"`
	Token     string `json:"token"`
	Threshold string `json:"threshold"`
	Slippage  string `json:"slippage"`
}

// Parse sends the sentence to the model and validates the structured reply.
func (p *ChatParser) Parse(ctx context.Context, text string) (Intent, error) {
	if strings.TrimSpace(text) == "" {
		return Intent{}, fmt.Errorf("%w: empty message", ErrUnparseable)
	}

	reply, err := p.complete(ctx, text)
	if err != nil {
		return Intent{}, err
	}

	var env envelope
	if err := json.Unmarshal([]byte(extractJSON(reply)), &env); err != nil {
		return Intent{}, fmt.Errorf("%w: model reply is not JSON: %v", ErrUnparseable, err)
	}

	return env.toIntent()
}

func (p *ChatParser) complete(ctx context.Context, text string) (string, error) {
	payload := chatRequest{
		Model: p.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, strings.Join(p.opts.Symbols, ", "))},
			{Role: "user", Content: text},
		},
		Temperature: p.opts.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	endpoint := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.opts.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var chatRes chatResponse
	if err := json.Unmarshal(payloadBytes, &chatRes); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if chatRes.Error != nil && chatRes.Error.Message != "" {
			return "", fmt.Errorf("completion api error (%d): %s", resp.StatusCode, chatRes.Error.Message)
		}
		return "", fmt.Errorf("completion api error (%d)", resp.StatusCode)
	}
	if len(chatRes.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	content := chatRes.Choices[0].Message.Content
	p.logger.Debug().Str("reply", content).Msg("model reply received")
	return content, nil
}

func (e envelope) toIntent() (Intent, error) {
	switch strings.ToLower(strings.TrimSpace(e.Kind)) {
	case string(KindTrade):
		amount, err := parseDecimal(e.AmountIn, "amount_in")
		if err != nil {
			return Intent{}, err
		}
		slippage, err := parseOptionalDecimal(e.Slippage)
		if err != nil {
			return Intent{}, err
		}
		trade := TradeIntent{
			TokenIn:  strings.ToUpper(strings.TrimSpace(e.TokenIn)),
			TokenOut: strings.ToUpper(strings.TrimSpace(e.TokenOut)),
			AmountIn: amount,
			Slippage: slippage,
		}
		if err := trade.validate(); err != nil {
			return Intent{}, err
		}
		return Intent{Kind: KindTrade, Trade: &trade}, nil

	case string(KindAlert):
		threshold, err := parseDecimal(e.Threshold, "threshold")
		if err != nil {
			return Intent{}, err
		}
		slippage, err := parseOptionalDecimal(e.Slippage)
		if err != nil {
			return Intent{}, err
		}
		alert := AlertIntent{
			Token:     strings.ToUpper(strings.TrimSpace(e.Token)),
			Threshold: threshold,
			Slippage:  slippage,
		}
		if err := alert.validate(); err != nil {
			return Intent{}, err
		}
		return Intent{Kind: KindAlert, Alert: &alert}, nil

	default:
		return Intent{}, fmt.Errorf("%w: kind %q", ErrUnparseable, e.Kind)
	}
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: bad %s %q", ErrUnparseable, field, raw)
	}
	return value, nil
}

func parseOptionalDecimal(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: bad slippage %q", ErrUnparseable, raw)
	}
	return &value, nil
}

// extractJSON tolerates markdown fences and prose around the JSON object.
func extractJSON(reply string) string {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		return cleaned[start : end+1]
	}
	return strings.TrimSpace(cleaned)
}

var _ Parser = (*ChatParser)(nil)
