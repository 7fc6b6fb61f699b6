package keyvault

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/execution/signer"
	"github.com/ggonzalez94/agencybot/internal/store"
)

// AccountStore is the persistence the vault needs for index assignment.
type AccountStore interface {
	GetAccount(ctx context.Context, externalID int64) (store.Account, bool, error)
	EnsureAccount(ctx context.Context, externalID int64) (store.Account, error)
	SetAccountAddress(ctx context.Context, accountID int64, address string) error
}

type Options struct {
	Passphrase string
	// ExportInterval is the minimum spacing between key exports per user.
	ExportInterval time.Duration
}

// Vault derives per-user keys from a single master mnemonic. The derivation
// index of a user is their account row id, which is assigned in creation order.
type Vault struct {
	accounts AccountStore
	seed     []byte
	log      zerolog.Logger

	exportInterval time.Duration
	limitersMu     sync.Mutex
	limiters       map[int64]*rate.Limiter
}

func New(accounts AccountStore, mnemonic string, opts Options, log zerolog.Logger) (*Vault, error) {
	if accounts == nil {
		return nil, clierr.New(clierr.CodeInternal, "keyvault requires an account store")
	}
	seed, err := seedFromMnemonic(mnemonic, opts.Passphrase)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load master mnemonic", err)
	}
	interval := opts.ExportInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Vault{
		accounts:       accounts,
		seed:           seed,
		log:            log,
		exportInterval: interval,
		limiters:       map[int64]*rate.Limiter{},
	}, nil
}

// ResolveAddress returns the user's address, creating and deriving the account
// on first contact. Repeated calls return the same address.
func (v *Vault) ResolveAddress(ctx context.Context, externalID int64) (common.Address, error) {
	acct, err := v.resolveAccount(ctx, externalID)
	if err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(acct.Address), nil
}

// WithSigner derives the user's key, hands a signer to fn and wipes the key
// once fn returns.
func (v *Vault) WithSigner(ctx context.Context, externalID int64, fn func(signer.Signer) error) error {
	s, err := v.signerFor(ctx, externalID)
	if err != nil {
		return err
	}
	defer s.Wipe()
	return fn(s)
}

// ExportPrivateKey returns the user's private key as hex. Every call is audit
// logged and limited per user.
func (v *Vault) ExportPrivateKey(ctx context.Context, externalID int64) (string, error) {
	if !v.limiter(externalID).Allow() {
		v.log.Warn().Int64("external_id", externalID).Msg("private key export rate limited")
		return "", clierr.New(clierr.CodeRateLimited, fmt.Sprintf("key export is limited to once every %s", v.exportInterval))
	}
	s, err := v.signerFor(ctx, externalID)
	if err != nil {
		return "", err
	}
	defer s.Wipe()
	key, err := s.PrivateKeyHex()
	if err != nil {
		return "", clierr.Wrap(clierr.CodeSigner, "export private key", err)
	}
	v.log.Warn().Int64("external_id", externalID).Str("address", s.Address().Hex()).Msg("private key exported")
	return key, nil
}

// AddressAt derives the address at a derivation index without touching the store.
func (v *Vault) AddressAt(index int64) (common.Address, error) {
	s, err := v.signerAt(index)
	if err != nil {
		return common.Address{}, err
	}
	defer s.Wipe()
	return s.Address(), nil
}

// Close zeroes the master seed.
func (v *Vault) Close() {
	for i := range v.seed {
		v.seed[i] = 0
	}
}

func (v *Vault) resolveAccount(ctx context.Context, externalID int64) (store.Account, error) {
	acct, ok, err := v.accounts.GetAccount(ctx, externalID)
	if err != nil {
		return store.Account{}, clierr.Wrap(clierr.CodeAccountState, "read account", err)
	}
	if ok && acct.Derived() {
		return acct, nil
	}
	if !ok {
		acct, err = v.accounts.EnsureAccount(ctx, externalID)
		if err != nil {
			return store.Account{}, clierr.Wrap(clierr.CodeAccountState, "create account", err)
		}
		if acct.Derived() {
			return acct, nil
		}
	}

	addr, err := v.AddressAt(acct.ID)
	if err != nil {
		return store.Account{}, err
	}
	if err := v.accounts.SetAccountAddress(ctx, acct.ID, addr.Hex()); err != nil {
		return store.Account{}, clierr.Wrap(clierr.CodeAccountState, "record derived address", err)
	}
	acct.Address = addr.Hex()
	v.log.Info().Int64("external_id", externalID).Int64("index", acct.ID).Str("address", acct.Address).Msg("account derived")
	return acct, nil
}

func (v *Vault) signerFor(ctx context.Context, externalID int64) (*signer.LocalSigner, error) {
	acct, err := v.resolveAccount(ctx, externalID)
	if err != nil {
		return nil, err
	}
	s, err := v.signerAt(acct.ID)
	if err != nil {
		return nil, err
	}
	if s.Address() != common.HexToAddress(acct.Address) {
		s.Wipe()
		return nil, clierr.New(clierr.CodeAccountState, fmt.Sprintf("stored address for account %d does not match its derivation", acct.ID))
	}
	return s, nil
}

func (v *Vault) signerAt(index int64) (*signer.LocalSigner, error) {
	if index < 0 || index > math.MaxInt32 {
		return nil, clierr.New(clierr.CodeAccountState, fmt.Sprintf("derivation index %d out of range", index))
	}
	raw, err := derivePrivateKey(v.seed, uint32(index))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "derive account key", err)
	}
	s, err := signer.NewLocalSignerFromBytes(raw)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load derived key", err)
	}
	return s, nil
}

func (v *Vault) limiter(externalID int64) *rate.Limiter {
	v.limitersMu.Lock()
	defer v.limitersMu.Unlock()
	l, ok := v.limiters[externalID]
	if !ok {
		l = rate.NewLimiter(rate.Every(v.exportInterval), 1)
		v.limiters[externalID] = l
	}
	return l
}
