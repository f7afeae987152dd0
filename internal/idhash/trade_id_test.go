package idhash

import (
	"testing"

	"solana-threshold-trader/internal/domain"
)

const (
	sigA = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	sigB = "4hXTCkRzt9WyecNzV1XPgCDfGAZzQKNxLXgynz5QDuWWPSAZBZSHptvWRL3BjCvzUXRdKvHL2b7yGrRQcWyaqsaBCncVG7BFggS"
)

func TestComputeTradeID(t *testing.T) {
	tests := []struct {
		name      string
		signature string
		side      domain.Side
		wantLen   int // hash length should be 64
	}{
		{name: "buy", signature: sigA, side: domain.SideBuy, wantLen: 64},
		{name: "sell", signature: sigB, side: domain.SideSell, wantLen: 64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTradeID(tt.signature, tt.side)

			if len(got) != tt.wantLen {
				t.Errorf("ComputeTradeID() length = %d, want %d", len(got), tt.wantLen)
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeTradeID(tt.signature, tt.side)
			if got != got2 {
				t.Errorf("ComputeTradeID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeTradeID_Uniqueness(t *testing.T) {
	ids := map[string]bool{
		ComputeTradeID(sigA, domain.SideBuy):  true,
		ComputeTradeID(sigA, domain.SideSell): true,
		ComputeTradeID(sigB, domain.SideBuy):  true,
		ComputeTradeID(sigB, domain.SideSell): true,
	}
	if len(ids) != 4 {
		t.Errorf("expected 4 distinct IDs, got %d", len(ids))
	}
}

func TestComputeObservationID(t *testing.T) {
	id := ComputeObservationID("run-1", domain.SideBuy, domain.WrappedSOLMint, "mint", 100_000_000, 1704067234567)
	if len(id) != 64 {
		t.Fatalf("length = %d, want 64", len(id))
	}
	if id != ComputeObservationID("run-1", domain.SideBuy, domain.WrappedSOLMint, "mint", 100_000_000, 1704067234567) {
		t.Error("ComputeObservationID() not deterministic")
	}

	variants := []string{
		ComputeObservationID("run-2", domain.SideBuy, domain.WrappedSOLMint, "mint", 100_000_000, 1704067234567),
		ComputeObservationID("run-1", domain.SideSell, domain.WrappedSOLMint, "mint", 100_000_000, 1704067234567),
		ComputeObservationID("run-1", domain.SideBuy, domain.WrappedSOLMint, "mint", 100_000_001, 1704067234567),
		ComputeObservationID("run-1", domain.SideBuy, domain.WrappedSOLMint, "mint", 100_000_000, 1704067234568),
	}
	for i, v := range variants {
		if v == id {
			t.Errorf("variant %d collides with base ID", i)
		}
	}
}
