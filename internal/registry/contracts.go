package registry

import "strings"

// NativeCurrency is the sentinel currency address for agencies settled in the
// chain's native asset.
const NativeCurrency = "0x0000000000000000000000000000000000000000"

// Multicall3 is deployed at the same address on every supported chain.
const Multicall3 = "0xcA11bde05977b3631167028862bE2a173976CA11"

// Canonical agency Router deployments keyed by chain ID.
var agencyRouterByChainID = map[int64]string{
	11155111: "0xEd78bF31CD8E36c628e048D0e47e9a38913d34eF", // Sepolia
}

func AgencyRouter(chainID int64) (string, bool) {
	value, ok := agencyRouterByChainID[chainID]
	return value, ok
}

var explorerTxURLByChainID = map[int64]string{
	1:        "https://etherscan.io/tx/",
	11155111: "https://sepolia.etherscan.io/tx/",
}

// ExplorerTxURL returns a block explorer link for hash, or "" when the chain
// has no known explorer and no override is configured.
func ExplorerTxURL(override string, chainID int64, hash string) string {
	base := strings.TrimSpace(override)
	if base == "" {
		base = explorerTxURLByChainID[chainID]
	}
	if base == "" || strings.TrimSpace(hash) == "" {
		return ""
	}
	return base + hash
}

// NativeSymbol is the display symbol used for native-asset agencies.
func NativeSymbol(chainID int64) string {
	return "ETH"
}

func IsNativeCurrency(address string) bool {
	return strings.EqualFold(strings.TrimSpace(address), NativeCurrency)
}
