package intent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestParser(t *testing.T, reply string, status int) (*ChatParser, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Fatalf("缺少 Authorization 头: %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": reply}},
			},
		})
	}))

	parser, err := NewChatParser(ChatOptions{
		Provider: "groq",
		Model:    "test-model",
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Timeout:  time.Second,
		Symbols:  []string{"ETH", "USDC"},
	}, testLogger())
	if err != nil {
		srv.Close()
		t.Fatal(err)
	}
	return parser, srv
}

func TestParseTradeIntent(t *testing.T) {
	reply := "```json\n{\"kind\":\"trade\",\"token_in\":\"eth\",\"token_out\":\"usdc\",\"amount_in\":\"1.5\",\"slippage\":\"0.03\"}\n```"
	parser, srv := newTestParser(t, reply, http.StatusOK)
	defer srv.Close()

	parsed, err := parser.Parse(context.Background(), "swap 1.5 eth into usdc, 3% slippage")
	if err != nil {
		t.Fatalf("解析不应报错: %v", err)
	}
	if parsed.Kind != KindTrade || parsed.Trade == nil {
		t.Fatalf("应得到 trade intent: %+v", parsed)
	}
	if parsed.Trade.TokenIn != "ETH" || parsed.Trade.TokenOut != "USDC" {
		t.Fatalf("token 应归一化为大写: %+v", parsed.Trade)
	}
	if !parsed.Trade.AmountIn.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("amount 不正确: %s", parsed.Trade.AmountIn.String())
	}
	if parsed.Trade.Slippage == nil || !parsed.Trade.Slippage.Equal(decimal.NewFromFloat(0.03)) {
		t.Fatalf("slippage 不正确: %+v", parsed.Trade.Slippage)
	}
}

func TestParseAlertIntentWithoutSlippage(t *testing.T) {
	reply := `{"kind":"alert","token":"ETH","threshold":"0.05"}`
	parser, srv := newTestParser(t, reply, http.StatusOK)
	defer srv.Close()

	parsed, err := parser.Parse(context.Background(), "tell me when eth drops 5%")
	if err != nil {
		t.Fatalf("解析不应报错: %v", err)
	}
	if parsed.Kind != KindAlert || parsed.Alert == nil {
		t.Fatalf("应得到 alert intent: %+v", parsed)
	}
	if !parsed.Alert.Threshold.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("threshold 不正确: %s", parsed.Alert.Threshold.String())
	}
	if parsed.Alert.Slippage != nil {
		t.Fatal("未给出的 slippage 应为 nil")
	}
}

func TestParseToleratesSurroundingProse(t *testing.T) {
	reply := "Sure! Here is the JSON you asked for:\n{\"kind\":\"alert\",\"token\":\"ETH\",\"threshold\":\"0.01\"}\nLet me know if you need anything else."
	parser, srv := newTestParser(t, reply, http.StatusOK)
	defer srv.Close()

	parsed, err := parser.Parse(context.Background(), "watch eth for a 1% dip")
	if err != nil {
		t.Fatalf("应容忍 JSON 周围的文字: %v", err)
	}
	if parsed.Kind != KindAlert {
		t.Fatalf("kind 不正确: %s", parsed.Kind)
	}
}

func TestParseRejectsNoneKind(t *testing.T) {
	parser, srv := newTestParser(t, `{"kind":"none"}`, http.StatusOK)
	defer srv.Close()

	if _, err := parser.Parse(context.Background(), "how is the weather"); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("kind=none 应返回 ErrUnparseable, got %v", err)
	}
}

func TestParseRejectsNonPositiveAmount(t *testing.T) {
	reply := `{"kind":"trade","token_in":"ETH","token_out":"USDC","amount_in":"0"}`
	parser, srv := newTestParser(t, reply, http.StatusOK)
	defer srv.Close()

	if _, err := parser.Parse(context.Background(), "swap nothing"); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("零数量应被拒绝, got %v", err)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	parser, srv := newTestParser(t, "not json at all", http.StatusOK)
	defer srv.Close()

	if _, err := parser.Parse(context.Background(), "swap 1 eth to usdc"); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("非 JSON 回复应返回 ErrUnparseable, got %v", err)
	}
}

func TestParseSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key"},
		})
	}))
	defer srv.Close()

	parser, err := NewChatParser(ChatOptions{
		Provider: "groq",
		Model:    "test-model",
		BaseURL:  srv.URL,
		APIKey:   "bad-key",
		Timeout:  time.Second,
	}, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse(context.Background(), "swap 1 eth to usdc"); err == nil {
		t.Fatal("API 错误应被上抛")
	}
}

func TestNewChatParserValidation(t *testing.T) {
	if _, err := NewChatParser(ChatOptions{Provider: "groq", Model: "m"}, testLogger()); err == nil {
		t.Fatal("缺少 api key 应报错")
	}
	if _, err := NewChatParser(ChatOptions{Provider: "groq", APIKey: "k"}, testLogger()); err == nil {
		t.Fatal("缺少 model 应报错")
	}
	if _, err := NewChatParser(ChatOptions{Provider: "mystery", Model: "m", APIKey: "k"}, testLogger()); err == nil {
		t.Fatal("未知 provider 且无 base_url 应报错")
	}

	if _, err := NewChatParser(ChatOptions{Provider: "deepseek", Model: "m", APIKey: "k"}, testLogger()); err != nil {
		t.Fatalf("deepseek 应有默认 base url: %v", err)
	}
}
