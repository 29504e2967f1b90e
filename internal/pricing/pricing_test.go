package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func testSpecs() []TokenSpec {
	return []TokenSpec{
		{Symbol: "ETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18, MinPrice: 100, MaxPrice: 100000},
		{Symbol: "USDC", Address: "0xFF970A61A04b1cA14834A43f5dE4533eBDDB5CC8", Decimals: 6, MinPrice: 0.5, MaxPrice: 2},
	}
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	registry, err := NewRegistry(testSpecs())
	if err != nil {
		t.Fatal(err)
	}

	for _, symbol := range []string{"eth", "ETH", " Eth "} {
		token, err := registry.Lookup(symbol)
		if err != nil {
			t.Fatalf("Lookup(%q) 不应报错: %v", symbol, err)
		}
		if token.Symbol != "ETH" {
			t.Fatalf("Lookup(%q) 应解析为 ETH, 实际 %s", symbol, token.Symbol)
		}
	}
}

func TestRegistryUnknownSymbol(t *testing.T) {
	registry, err := NewRegistry(testSpecs())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := registry.Lookup("DOGE"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("未配置的 symbol 应返回 ErrUnknownToken, got %v", err)
	}
}

func TestRegistryRejectsBadSpecs(t *testing.T) {
	if _, err := NewRegistry([]TokenSpec{{Symbol: "ETH", Address: "not-an-address"}}); err == nil {
		t.Fatal("非法地址应报错")
	}

	specs := testSpecs()
	specs = append(specs, TokenSpec{Symbol: "eth", Address: specs[0].Address, Decimals: 18})
	if _, err := NewRegistry(specs); err == nil {
		t.Fatal("重复 symbol 应报错")
	}
}

func TestSanityBand(t *testing.T) {
	registry, err := NewRegistry(testSpecs())
	if err != nil {
		t.Fatal(err)
	}
	token, err := registry.Lookup("USDC")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		price   string
		wantErr bool
	}{
		{"1.0001", false},
		{"0.5", false},
		{"2", false},
		{"0.4", true},
		{"2.5", true},
		{"0", true},
		{"-1", true},
	}
	for _, tc := range cases {
		err := checkBand(token, decimal.RequireFromString(tc.price))
		if tc.wantErr && !errors.Is(err, ErrPriceOutOfRange) {
			t.Fatalf("price %s 应越界, got %v", tc.price, err)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("price %s 应在区间内: %v", tc.price, err)
		}
	}
}

func TestSanityBandUpperBoundDisabled(t *testing.T) {
	token := Token{Symbol: "T", MinPrice: decimal.NewFromInt(1)}
	if err := checkBand(token, decimal.NewFromInt(1_000_000)); err != nil {
		t.Fatalf("零上界应禁用上限检查: %v", err)
	}
}

func TestVaultOracleMissingConfig(t *testing.T) {
	registry, err := NewRegistry(testSpecs())
	if err != nil {
		t.Fatal(err)
	}

	oracle := NewVaultOracle(OracleOptions{}, registry, noopLogger())
	if _, err := oracle.GetPrice(context.Background(), "ETH"); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	oracle = NewVaultOracle(OracleOptions{RPCURL: "http://localhost"}, registry, noopLogger())
	if _, err := oracle.GetPrice(context.Background(), "ETH"); err == nil {
		t.Fatal("缺少 vault 地址应报错")
	}
}

func TestVaultOracleUnknownSymbolFailsBeforeDial(t *testing.T) {
	registry, err := NewRegistry(testSpecs())
	if err != nil {
		t.Fatal(err)
	}

	oracle := NewVaultOracle(OracleOptions{
		RPCURL:       "http://localhost:1", // never dialled for unknown symbols
		VaultAddress: "0x489ee077994B6658eAfA855C308275EAd8097C4A",
	}, registry, noopLogger())

	if _, err := oracle.GetPrice(context.Background(), "DOGE"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("未知 symbol 应在拨号前失败, got %v", err)
	}
}
