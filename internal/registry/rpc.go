package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// Public RPC endpoints for chains that have an agency router deployment.
var defaultRPCByChainID = map[int64]string{
	1:        "https://eth.llamarpc.com",
	11155111: "https://1rpc.io/sepolia",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

// ResolveRPCURL picks the configured endpoint, falling back to the chain
// default. Configured endpoints may be http(s) or ws(s).
func ResolveRPCURL(configured string, chainID int64) (string, error) {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		if value, ok := DefaultRPCURL(chainID); ok {
			return value, nil
		}
		return "", fmt.Errorf("no default rpc for chain id %d; set chain.rpc_url or --rpc-url", chainID)
	}
	u, err := url.Parse(configured)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid rpc url %q", configured)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return configured, nil
	default:
		return "", fmt.Errorf("unsupported rpc url scheme %q", u.Scheme)
	}
}
