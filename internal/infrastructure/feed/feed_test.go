package feed

import (
	"context"
	"testing"
)

func TestAsterStreamURL(t *testing.T) {
	f := NewAsterFeed("wss://fstream.asterdex.com/", []string{"ETH", "BTCUSDT"})

	got := f.streamURL()
	want := "wss://fstream.asterdex.com/stream?streams=ethusdt@markPrice/btcusdt@markPrice"
	if got != want {
		t.Errorf("streamURL = %s, want %s", got, want)
	}
}

func TestLighterFeedTracksNormalizedSymbols(t *testing.T) {
	f := NewLighterFeed("wss://mainnet.zklighter.elliot.ai/stream", []string{"ETHUSDT", "btc"})

	if _, ok := f.tracked["ETH"]; !ok {
		t.Error("ETHUSDT should normalize to ETH")
	}
	if _, ok := f.tracked["BTC"]; !ok {
		t.Error("btc should normalize to BTC")
	}
	if len(f.tracked) != 2 {
		t.Errorf("tracked = %v", f.tracked)
	}
}

func TestFeedStartRequiresURL(t *testing.T) {
	if err := NewHyperliquidFeed("", []string{"ETH"}).Start(context.Background()); err == nil {
		t.Error("empty ws_url should fail")
	}
	if err := NewAsterFeed("", []string{"ETH"}).Start(context.Background()); err == nil {
		t.Error("empty ws_url should fail")
	}
	if err := NewLighterFeed("", []string{"ETH"}).Start(context.Background()); err == nil {
		t.Error("empty ws_url should fail")
	}
}
