package wallet

import (
	"context"
	"testing"
)

func TestResolveAddressExplicit(t *testing.T) {
	addr, err := resolveAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "")
	if err != nil {
		t.Fatalf("resolveAddress failed: %v", err)
	}
	if addr.Hex() != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("address = %s", addr.Hex())
	}
}

func TestResolveAddressRejectsGarbage(t *testing.T) {
	if _, err := resolveAddress("not-an-address", ""); err == nil {
		t.Error("invalid address should fail")
	}
	if _, err := resolveAddress("", ""); err == nil {
		t.Error("no address and no key env should fail")
	}
}

func TestResolveAddressFromPrivateKey(t *testing.T) {
	// hardhat 测试私钥 #0，对应地址众所周知
	t.Setenv("TEST_WALLET_KEY", "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")

	addr, err := resolveAddress("", "TEST_WALLET_KEY")
	if err != nil {
		t.Fatalf("resolveAddress failed: %v", err)
	}
	if addr.Hex() != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Errorf("derived address = %s", addr.Hex())
	}
}

func TestLedgerTreasuryAccumulates(t *testing.T) {
	tr, err := NewLedgerTreasury("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", 10000)
	if err != nil {
		t.Fatalf("NewLedgerTreasury failed: %v", err)
	}
	if tr.DeployedCapital() != 10000 {
		t.Errorf("deployed = %v", tr.DeployedCapital())
	}

	ctx := context.Background()
	if err := tr.SendFunds(ctx, 30); err != nil {
		t.Fatalf("SendFunds failed: %v", err)
	}
	if err := tr.SendFunds(ctx, 20); err != nil {
		t.Fatalf("SendFunds failed: %v", err)
	}
	if tr.SentUSD() != 50 {
		t.Errorf("sent = %v, want 50", tr.SentUSD())
	}

	if err := tr.SendFunds(ctx, 0); err == nil {
		t.Error("zero amount should fail")
	}
}
