package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	ChainID   int64     `json:"chain_id,omitempty"`
}

type AccountAddress struct {
	ExternalID int64  `json:"external_id"`
	Address    string `json:"address"`
	ChainID    int64  `json:"chain_id"`
}

type ExportedKey struct {
	ExternalID int64  `json:"external_id"`
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// AgencyQuote is the on-chain view of an agency at the current supply point.
// Amounts are in base units of Currency.
type AgencyQuote struct {
	Agency         string `json:"agency"`
	App            string `json:"app"`
	Name           string `json:"name"`
	Currency       string `json:"currency"`
	Symbol         string `json:"symbol"`
	Decimals       uint8  `json:"decimals"`
	BasePremium    string `json:"base_premium"`
	MintFeePercent string `json:"mint_fee_percent"`
	BurnFeePercent string `json:"burn_fee_percent"`
	TotalSupply    string `json:"total_supply"`
	MaxSupply      string `json:"max_supply"`
	WrapPrice      string `json:"wrap_price"`
	WrapFee        string `json:"wrap_fee"`
	WrapTotal      string `json:"wrap_total"`
	UnwrapPrice    string `json:"unwrap_price"`
	UnwrapFee      string `json:"unwrap_fee"`
	UnwrapNet      string `json:"unwrap_net"`
}

// AgencyInfo is the indexer's description of an agency.
type AgencyInfo struct {
	Agency         string `json:"agency"`
	App            string `json:"app"`
	AppName        string `json:"app_name"`
	Currency       string `json:"currency"`
	Symbol         string `json:"symbol"`
	Decimals       uint8  `json:"decimals"`
	TVL            string `json:"tvl"`
	MintPrice      string `json:"mint_price"`
	MintFeePercent string `json:"mint_fee_percent"`
	BurnFeePercent string `json:"burn_fee_percent"`
	TotalSupply    string `json:"total_supply"`
}

type HeldToken struct {
	TokenID string `json:"token_id"`
	Name    string `json:"name"`
}
