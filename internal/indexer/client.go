package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/httpx"
)

const dotAgencyQuery = `query QueryDotAgency($agency: String!) {
  dotAgencies(where: {agencyInstance_: {id: $agency}}) {
    agencyImplementation
    appImplementation
    agencyInstance {
      id
      mintFeePercent
      burnFeePercent
      swap
      tvl
      fee
      currency { id decimals symbol }
    }
    appInstance { id name totalSupply }
    mintPrice
  }
}`

const accountTokensQuery = `query QueryAccountTokens($owner: String!, $agency: String!, $first: Int) {
  tokens(first: $first, where: {owner: $owner, agencyInstance: $agency}, orderBy: tokenId) {
    tokenId
    name
  }
}`

const maxHeldTokens = 100

// Currency is the collateral asset backing an agency.
type Currency struct {
	Address  string
	Decimals uint8
	Symbol   string
}

// AgencyInfo is the indexed view of one agency deployment.
type AgencyInfo struct {
	AgencyImplementation string
	AppImplementation    string
	AgencyAddress        string
	AppAddress           string
	AppName              string
	TotalSupply          *big.Int
	MintFeePercent       uint16
	BurnFeePercent       uint16
	Swap                 *big.Int
	TVL                  *big.Int
	Fee                  *big.Int
	MintPrice            *big.Int
	Currency             Currency
}

// HeldToken is a wrapper token held by an account.
type HeldToken struct {
	TokenID *big.Int
	Name    string
}

type Client struct {
	http     *httpx.Client
	endpoint string
}

func New(httpClient *httpx.Client, endpoint string) *Client {
	return &Client{http: httpClient, endpoint: strings.TrimSpace(endpoint)}
}

type graphQLError struct {
	Message string `json:"message"`
}

type dotAgencyResponse struct {
	Data struct {
		DotAgencies []struct {
			AgencyImplementation string `json:"agencyImplementation"`
			AppImplementation    string `json:"appImplementation"`
			AgencyInstance       struct {
				ID             string  `json:"id"`
				MintFeePercent flexInt `json:"mintFeePercent"`
				BurnFeePercent flexInt `json:"burnFeePercent"`
				Swap           flexInt `json:"swap"`
				TVL            flexInt `json:"tvl"`
				Fee            flexInt `json:"fee"`
				Currency       *struct {
					ID       string  `json:"id"`
					Decimals flexInt `json:"decimals"`
					Symbol   string  `json:"symbol"`
				} `json:"currency"`
			} `json:"agencyInstance"`
			AppInstance struct {
				ID          string  `json:"id"`
				Name        string  `json:"name"`
				TotalSupply flexInt `json:"totalSupply"`
			} `json:"appInstance"`
			MintPrice flexInt `json:"mintPrice"`
		} `json:"dotAgencies"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type accountTokensResponse struct {
	Data struct {
		Tokens []struct {
			TokenID flexInt `json:"tokenId"`
			Name    string  `json:"name"`
		} `json:"tokens"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// QueryDotAgency looks up an agency by address. found is false when the
// indexer has no record of it.
func (c *Client) QueryDotAgency(ctx context.Context, agency common.Address) (AgencyInfo, bool, error) {
	var resp dotAgencyResponse
	vars := map[string]any{"agency": strings.ToLower(agency.Hex())}
	if err := c.query(ctx, dotAgencyQuery, vars, &resp, func() []graphQLError { return resp.Errors }); err != nil {
		return AgencyInfo{}, false, err
	}
	if len(resp.Data.DotAgencies) == 0 {
		return AgencyInfo{}, false, nil
	}

	item := resp.Data.DotAgencies[0]
	info := AgencyInfo{
		AgencyImplementation: item.AgencyImplementation,
		AppImplementation:    item.AppImplementation,
		AgencyAddress:        normalizeAddress(item.AgencyInstance.ID),
		AppAddress:           normalizeAddress(item.AppInstance.ID),
		AppName:              item.AppInstance.Name,
		TotalSupply:          item.AppInstance.TotalSupply.Big(),
		MintFeePercent:       item.AgencyInstance.MintFeePercent.Uint16(),
		BurnFeePercent:       item.AgencyInstance.BurnFeePercent.Uint16(),
		Swap:                 item.AgencyInstance.Swap.Big(),
		TVL:                  item.AgencyInstance.TVL.Big(),
		Fee:                  item.AgencyInstance.Fee.Big(),
		MintPrice:            item.MintPrice.Big(),
	}
	if cur := item.AgencyInstance.Currency; cur != nil {
		info.Currency = Currency{
			Address:  normalizeAddress(cur.ID),
			Decimals: uint8(cur.Decimals.Uint16()),
			Symbol:   cur.Symbol,
		}
	} else {
		info.Currency = Currency{Address: common.Address{}.Hex(), Decimals: 18, Symbol: "ETH"}
	}
	if info.AppAddress == "" {
		return AgencyInfo{}, false, nil
	}
	return info, true, nil
}

// QueryAccountTokens lists wrapper tokens of agency held by owner, ordered by
// token id.
func (c *Client) QueryAccountTokens(ctx context.Context, owner, agency common.Address) ([]HeldToken, error) {
	var resp accountTokensResponse
	vars := map[string]any{
		"owner":  strings.ToLower(owner.Hex()),
		"agency": strings.ToLower(agency.Hex()),
		"first":  maxHeldTokens,
	}
	if err := c.query(ctx, accountTokensQuery, vars, &resp, func() []graphQLError { return resp.Errors }); err != nil {
		return nil, err
	}
	out := make([]HeldToken, 0, len(resp.Data.Tokens))
	for _, item := range resp.Data.Tokens {
		out = append(out, HeldToken{TokenID: item.TokenID.Big(), Name: item.Name})
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any, errs func() []graphQLError) error {
	if c.endpoint == "" {
		return clierr.New(clierr.CodeUsage, "indexer url is not configured")
	}
	payload := map[string]any{"query": query, "variables": vars}
	if err := c.http.PostJSON(ctx, c.endpoint, payload, out); err != nil {
		return err
	}
	if list := errs(); len(list) > 0 {
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("indexer graphql error: %s", list[0].Message))
	}
	return nil
}

func normalizeAddress(v string) string {
	v = strings.TrimSpace(v)
	if !common.IsHexAddress(v) {
		return ""
	}
	return common.HexToAddress(v).Hex()
}

// flexInt decodes subgraph integers, which arrive as JSON strings for BigInt
// fields and as numbers for Int fields.
type flexInt struct {
	v *big.Int
}

func (f *flexInt) UnmarshalJSON(raw []byte) error {
	s := strings.TrimSpace(string(raw))
	if s == "null" || s == "" {
		f.v = nil
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	if s == "" {
		f.v = nil
		return nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid integer %q", s)
	}
	f.v = n
	return nil
}

func (f flexInt) Big() *big.Int {
	if f.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(f.v)
}

func (f flexInt) Uint16() uint16 {
	if f.v == nil || f.v.Sign() < 0 || !f.v.IsUint64() || f.v.Uint64() > 0xffff {
		return 0
	}
	return uint16(f.v.Uint64())
}
