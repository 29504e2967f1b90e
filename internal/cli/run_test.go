package cli

import "testing"

func TestParseAlertFlag(t *testing.T) {
	spec, err := parseAlertFlag("ETH:0.05", "cli")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Token != "ETH" {
		t.Fatalf("期望 ETH, 实际 %q", spec.Token)
	}
	if spec.Threshold.String() != "0.05" {
		t.Fatalf("期望阈值 0.05, 实际 %s", spec.Threshold.String())
	}
	if spec.Slippage != nil {
		t.Fatal("未指定滑点时应为 nil")
	}
	if spec.OwnerID != "cli" {
		t.Fatalf("owner 不匹配: %q", spec.OwnerID)
	}
}

func TestParseAlertFlagWithSlippage(t *testing.T) {
	spec, err := parseAlertFlag(" BTC:0.01:0.03 ", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if spec.Token != "BTC" {
		t.Fatalf("期望 BTC, 实际 %q", spec.Token)
	}
	if spec.Slippage == nil || spec.Slippage.String() != "0.03" {
		t.Fatalf("滑点解析错误: %v", spec.Slippage)
	}
}

func TestParseAlertFlagRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"ETH", "ETH:x", "ETH:0.05:y", "ETH:0.05:0.02:extra", ""} {
		if _, err := parseAlertFlag(raw, "cli"); err == nil {
			t.Fatalf("%q 应解析失败", raw)
		}
	}
}
