package signer

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

func TestNewLocalSignerFromHexSigns(t *testing.T) {
	s, err := NewLocalSignerFromHex("0x" + testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSignerFromHex failed: %v", err)
	}
	if s.Address() == (common.Address{}) {
		t.Fatal("expected non-zero signer address")
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(11155111),
		Nonce:     0,
		To:        ptrAddress(common.HexToAddress("0x0000000000000000000000000000000000000001")),
		Value:     big.NewInt(0),
		Gas:       21_000,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
	})
	signed, err := s.SignTx(big.NewInt(11155111), tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != s.Address() {
		t.Fatalf("sender mismatch: %s != %s", from.Hex(), s.Address().Hex())
	}
}

func TestNewLocalSignerFromBytesZeroesInput(t *testing.T) {
	raw, err := hexutil.Decode("0x" + testPrivateKey)
	if err != nil {
		t.Fatalf("decode key: %v", err)
	}
	s, err := NewLocalSignerFromBytes(raw)
	if err != nil {
		t.Fatalf("NewLocalSignerFromBytes failed: %v", err)
	}
	for _, b := range raw {
		if b != 0 {
			t.Fatal("expected input key bytes to be zeroed")
		}
	}
	exported, err := s.PrivateKeyHex()
	if err != nil {
		t.Fatalf("PrivateKeyHex failed: %v", err)
	}
	if !strings.EqualFold(exported, "0x"+testPrivateKey) {
		t.Fatalf("unexpected exported key %s", exported)
	}
}

func TestWipeDisablesSigning(t *testing.T) {
	s, err := NewLocalSignerFromHex(testPrivateKey)
	if err != nil {
		t.Fatalf("NewLocalSignerFromHex failed: %v", err)
	}
	s.Wipe()
	s.Wipe()
	tx := types.NewTx(&types.LegacyTx{Gas: 21_000, GasPrice: big.NewInt(1), Value: big.NewInt(0)})
	if _, err := s.SignTx(common.Big1, tx); err == nil {
		t.Fatal("expected sign after wipe to fail")
	}
	if _, err := s.PrivateKeyHex(); err == nil {
		t.Fatal("expected export after wipe to fail")
	}
}

func TestNewLocalSignerFromHexRejectsEmpty(t *testing.T) {
	if _, err := NewLocalSignerFromHex("  0x "); err == nil {
		t.Fatal("expected empty key to fail")
	}
}

func ptrAddress(addr common.Address) *common.Address {
	return &addr
}
