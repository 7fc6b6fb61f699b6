package policy

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

func TestCheckSlippageBoundary(t *testing.T) {
	quote := chain.Quote{Price: big.NewInt(1_000), Fee: big.NewInt(25)}
	cases := []struct {
		maxCost int64
		wantErr bool
	}{
		{maxCost: 1_026, wantErr: false},
		{maxCost: 1_025, wantErr: false},
		{maxCost: 1_024, wantErr: true},
		{maxCost: 0, wantErr: true},
	}
	for _, tc := range cases {
		err := CheckSlippage(big.NewInt(tc.maxCost), quote)
		if tc.wantErr {
			if !clierr.Is(err, clierr.CodeSlippageExceeded) {
				t.Fatalf("maxCost=%d: expected slippage error, got %v", tc.maxCost, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("maxCost=%d: unexpected error %v", tc.maxCost, err)
		}
	}
}

func TestCheckSlippageRandomTriples(t *testing.T) {
	rng := rand.New(rand.NewSource(7527))
	for i := 0; i < 2_000; i++ {
		price := big.NewInt(rng.Int63n(1_000_000))
		fee := big.NewInt(rng.Int63n(10_000))
		total := new(big.Int).Add(price, fee)
		maxCost := new(big.Int).Add(total, big.NewInt(rng.Int63n(2_001)-1_000))
		if maxCost.Sign() < 0 {
			maxCost.SetInt64(0)
		}
		err := CheckSlippage(maxCost, chain.Quote{Price: price, Fee: fee})
		covered := maxCost.Cmp(total) >= 0
		if covered && err != nil {
			t.Fatalf("price=%s fee=%s maxCost=%s: unexpected error %v", price, fee, maxCost, err)
		}
		if !covered && !clierr.Is(err, clierr.CodeSlippageExceeded) {
			t.Fatalf("price=%s fee=%s maxCost=%s: expected slippage error, got %v", price, fee, maxCost, err)
		}
	}
}

func TestCheckSlippageRejectsNegative(t *testing.T) {
	err := CheckSlippage(big.NewInt(-1), chain.Quote{Price: big.NewInt(0), Fee: big.NewInt(0)})
	if !clierr.Is(err, clierr.CodeInputValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckProceeds(t *testing.T) {
	quote := chain.Quote{Price: big.NewInt(1_000), Fee: big.NewInt(50)}
	if err := CheckProceeds(big.NewInt(0), quote); err != nil {
		t.Fatalf("zero bound must pass: %v", err)
	}
	if err := CheckProceeds(nil, quote); err != nil {
		t.Fatalf("nil bound must pass: %v", err)
	}
	if err := CheckProceeds(big.NewInt(950), quote); err != nil {
		t.Fatalf("equal bound must pass: %v", err)
	}
	if err := CheckProceeds(big.NewInt(951), quote); !clierr.Is(err, clierr.CodeSlippageExceeded) {
		t.Fatalf("expected slippage error, got %v", err)
	}
}
