package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner holds a derived secp256k1 key in memory until Wipe is called.
type LocalSigner struct {
	mu         sync.Mutex
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil {
		return nil, errors.New("local signer is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateKey == nil {
		return nil, errors.New("local signer key has been wiped")
	}
	signer := types.LatestSignerForChainID(chainID)
	return types.SignTx(tx, signer, s.privateKey)
}

// PrivateKeyHex returns the 0x-prefixed private scalar. Callers are expected
// to gate and audit every use.
func (s *LocalSigner) PrivateKeyHex() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateKey == nil {
		return "", errors.New("local signer key has been wiped")
	}
	return hexutil.Encode(crypto.FromECDSA(s.privateKey)), nil
}

// Wipe zeroes the private scalar. The signer is unusable afterwards.
func (s *LocalSigner) Wipe() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateKey == nil {
		return
	}
	if s.privateKey.D != nil {
		s.privateKey.D.SetInt64(0)
	}
	s.privateKey = nil
}

// NewLocalSignerFromBytes builds a signer from a raw 32-byte scalar. The input
// slice is zeroed once the key has been parsed.
func NewLocalSignerFromBytes(raw []byte) (*LocalSigner, error) {
	defer zero(raw)
	pk, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewLocalSignerFromKey(pk)
}

func NewLocalSignerFromKey(pk *ecdsa.PrivateKey) (*LocalSigner, error) {
	if pk == nil {
		return nil, errors.New("missing private key")
	}
	pub, ok := pk.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid ECDSA public key")
	}
	return &LocalSigner{privateKey: pk, address: crypto.PubkeyToAddress(*pub)}, nil
}

func NewLocalSignerFromHex(raw string) (*LocalSigner, error) {
	pk, err := parseHexKey(raw)
	if err != nil {
		return nil, err
	}
	return NewLocalSignerFromKey(pk)
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	pk, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return pk, nil
}

func zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
