package keyvault

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// BIP-32 test vector 3 exercises a parent key with leading zero bytes.
func TestDerivePathRetainsLeadingZeros(t *testing.T) {
	seed, err := hex.DecodeString("4b381541583be4423346c643850da4b320e46a87ae3d2a4e6da11eba819cd4acba45d239319ac14f863b8d5ab5a0d0c64d2e8a1e7d1457df2e5a3c51c73235be")
	if err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("NewMaster failed: %v", err)
	}
	if got := master.String(); got != "xprv9s21ZrQH143K25QhxbucbDDuQ4naNntJRi4KUfWT7xo4EKsHt2QJDu7KXp1A3u7Bi1j8ph3EGsZ9Xvz9dGuVrtHHs7pXeTzjuxBrCmmhgC6" {
		t.Fatalf("unexpected master key %s", got)
	}
	child, err := derivePath(master, []uint32{hdkeychain.HardenedKeyStart})
	if err != nil {
		t.Fatalf("derivePath failed: %v", err)
	}
	if got := child.String(); got != "xprv9uPDJpEQgRQfDcW7BkF7eTya6RPxXeJCqCJGHuCJ4GiRVLzkTXBAJMu2qaMWPrS7AANYqdq6vcBcBUdJCVVFceUvJFjaPdGZ2y9WACViL4L" {
		t.Fatalf("unexpected m/0' key %s", got)
	}
}

func TestDerivePrivateKeyRejectsHardenedIndex(t *testing.T) {
	seed, err := seedFromMnemonic(testMnemonic, "")
	if err != nil {
		t.Fatalf("seedFromMnemonic failed: %v", err)
	}
	if _, err := derivePrivateKey(seed, hdkeychain.HardenedKeyStart); err == nil {
		t.Fatal("expected hardened index to be rejected")
	}
	key, err := derivePrivateKey(seed, 0)
	if err != nil || len(key) != 32 {
		t.Fatalf("expected 32-byte key, got %d err=%v", len(key), err)
	}
}
