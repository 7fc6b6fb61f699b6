package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestAgencyRouter(t *testing.T) {
	addr, ok := AgencyRouter(11155111)
	if !ok || addr == "" {
		t.Fatal("expected sepolia router to exist")
	}
	if _, ok := AgencyRouter(1); ok {
		t.Fatal("did not expect a router for mainnet")
	}
}

func TestABIConstantsParse(t *testing.T) {
	abis := []string{
		ERC20MinimalABI,
		AgencyABI,
		AppABI,
		AgencyRouterABI,
		Multicall3ABI,
	}
	for _, raw := range abis {
		if _, err := abi.JSON(strings.NewReader(raw)); err != nil {
			t.Fatalf("failed to parse abi json: %v", err)
		}
	}
}

func TestExplorerTxURL(t *testing.T) {
	if got := ExplorerTxURL("", 11155111, "0xabc"); got != "https://sepolia.etherscan.io/tx/0xabc" {
		t.Fatalf("unexpected explorer url: %s", got)
	}
	if got := ExplorerTxURL("https://scan.example/tx/", 99, "0xabc"); got != "https://scan.example/tx/0xabc" {
		t.Fatalf("unexpected override url: %s", got)
	}
	if got := ExplorerTxURL("", 99, "0xabc"); got != "" {
		t.Fatalf("expected no url for unknown chain, got %s", got)
	}
}

func TestResolveRPCURL(t *testing.T) {
	if got, err := ResolveRPCURL("  https://rpc.example  ", 1); err != nil || got != "https://rpc.example" {
		t.Fatalf("expected override, got %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL("", 424242); err == nil {
		t.Fatal("expected error for chain without default rpc")
	}
	if got, err := ResolveRPCURL("", 11155111); err != nil || got == "" {
		t.Fatalf("expected sepolia default, got %q err=%v", got, err)
	}
	if _, err := ResolveRPCURL("ftp://rpc.example", 1); err == nil {
		t.Fatal("expected unsupported scheme to be rejected")
	}
	if _, err := ResolveRPCURL("localhost:8545", 1); err == nil {
		t.Fatal("expected url without scheme to be rejected")
	}
}

func TestIsNativeCurrency(t *testing.T) {
	if !IsNativeCurrency(" 0x0000000000000000000000000000000000000000 ") {
		t.Fatal("expected zero address to be native")
	}
	if IsNativeCurrency("0x0000000000000000000000000000000000000001") {
		t.Fatal("did not expect non-zero address to be native")
	}
}

func TestIsAllowedIndexerURL(t *testing.T) {
	cases := []struct {
		endpoint string
		want     bool
	}{
		{"", true},
		{"https://api.studio.thegraph.com/query/1/dotagency/v1", true},
		{"http://127.0.0.1:8000/subgraphs/name/dotagency", true},
		{"http://localhost:8000/graphql", true},
		{"http://indexer.example/graphql", false},
		{"ftp://localhost/graphql", false},
		{"https:///missing-host", false},
	}
	for _, tc := range cases {
		if got := IsAllowedIndexerURL(tc.endpoint); got != tc.want {
			t.Fatalf("IsAllowedIndexerURL(%q)=%v want %v", tc.endpoint, got, tc.want)
		}
	}
}
