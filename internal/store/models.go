package store

import "time"

// UnderivedAddress marks an account row whose address has not been derived yet.
const UnderivedAddress = "0"

// Account is a custodial account. ID is the derivation index: assigned once
// at creation, in creation order, and never reused.
type Account struct {
	ID         int64
	ExternalID int64
	Address    string
	CreatedAt  time.Time
}

func (a Account) Derived() bool {
	return a.Address != "" && a.Address != UnderivedAddress
}

// AgencySubscription is an agency a user has added to their list.
type AgencySubscription struct {
	AccountID     int64
	AgencyAddress string
	AgentAddress  string
	AgencyName    string
	TokenAddress  string
	CreatedAt     time.Time
}

type TokenInfo struct {
	TokenAddress string
	Symbol       string
	Decimals     uint8
	UpdatedAt    time.Time
}
