package id

import (
	"math/big"
	"strings"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

func TestParseUnitsDecimal(t *testing.T) {
	got, err := ParseUnits("1.25", 6)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if got.String() != "1250000" {
		t.Fatalf("unexpected base units: %s", got)
	}
	got, err = ParseUnits("0.00000001", 18)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if got.String() != "10000000000" {
		t.Fatalf("unexpected base units: %s", got)
	}
}

func TestParseUnitsValidation(t *testing.T) {
	cases := []string{"", "abc", "-1", "1.1234567"}
	for _, input := range cases {
		if _, err := ParseUnits(input, 6); err == nil {
			t.Fatalf("expected %q to be rejected", input)
		}
	}
}

func TestParseUnitsRejectsOversizedInput(t *testing.T) {
	cases := []string{
		"1e30000000",
		"1E3",
		"2.5e-1",
		"115792089237316195423570985008687907853269984665640564039457584007913129639936",
		"1" + strings.Repeat("0", 120),
	}
	for _, input := range cases {
		start := time.Now()
		_, err := ParseUnits(input, 18)
		if err == nil {
			t.Fatalf("expected %q to be rejected", input)
		}
		if !clierr.Is(err, clierr.CodeInputValidation) {
			t.Fatalf("expected input validation error for %q, got %v", input, err)
		}
		if time.Since(start) > time.Second {
			t.Fatalf("rejecting %q took %s", input, time.Since(start))
		}
	}
}

func TestParseUnitsAcceptsUint256Max(t *testing.T) {
	limit := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	got, err := ParseUnits(limit, 0)
	if err != nil {
		t.Fatalf("ParseUnits failed: %v", err)
	}
	if got.String() != limit {
		t.Fatalf("unexpected base units: %s", got)
	}
	if _, err := ParseUnits(limit, 1); err == nil {
		t.Fatal("expected shifted max to overflow")
	}
}

func TestFormatUnits(t *testing.T) {
	if got := FormatUnits(big.NewInt(1_500_000), 6); got != "1.5" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := FormatUnits(big.NewInt(0), 18); got != "0" {
		t.Fatalf("unexpected zero format: %s", got)
	}
	if got := FormatUnitsFixed(big.NewInt(1_234_567), 6, 4); got != "1.2345" {
		t.Fatalf("unexpected fixed format: %s", got)
	}
	if got := FormatPercent(250); got != "2.5%" {
		t.Fatalf("unexpected percent: %s", got)
	}
}
