package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ggonzalez94/agencybot/internal/registry"
)

var (
	AgencyABI    = mustABI(registry.AgencyABI)
	AppABI       = mustABI(registry.AppABI)
	ERC20ABI     = mustABI(registry.ERC20MinimalABI)
	RouterABI    = mustABI(registry.AgencyRouterABI)
	MulticallABI = mustABI(registry.Multicall3ABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
