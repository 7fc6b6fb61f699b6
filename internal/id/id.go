package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	tokenIDPattern     = regexp.MustCompile(`^[0-9]+$`)
)

type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
}

var chainBySlug = map[string]Chain{
	"ethereum": {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"mainnet":  {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1},
	"sepolia":  {Name: "Sepolia", Slug: "sepolia", CAIP2: "eip155:11155111", EVMChainID: 11155111},
}

var chainByID = map[int64]Chain{
	1:        chainBySlug["ethereum"],
	11155111: chainBySlug["sepolia"],
}

// ParseChain accepts a slug, a numeric chain id or an eip155 CAIP-2 string.
func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(raw)

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}
	if eip155ChainPattern.MatchString(norm) {
		norm = strings.TrimPrefix(norm, "eip155:")
	}
	if id, err := strconv.ParseInt(norm, 10, 64); err == nil && id > 0 {
		return ChainFromID(id), nil
	}
	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

func ChainFromID(id int64) Chain {
	if chain, ok := chainByID[id]; ok {
		return chain
	}
	return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id}
}

// ParseAddress validates a 0x-prefixed 20-byte hex address. Mixed-case input
// is accepted without checksum enforcement.
func ParseAddress(input string) (common.Address, error) {
	raw := strings.TrimSpace(input)
	if !evmAddressPattern.MatchString(raw) {
		return common.Address{}, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("%q is not a valid address", raw))
	}
	return common.HexToAddress(raw), nil
}

// ParseTokenID parses a non-negative decimal token id.
func ParseTokenID(input string) (*big.Int, error) {
	raw := strings.TrimSpace(input)
	if !tokenIDPattern.MatchString(raw) {
		return nil, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("%q is not a valid token id", raw))
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, clierr.New(clierr.CodeInputValidation, fmt.Sprintf("%q is not a valid token id", raw))
	}
	return v, nil
}
