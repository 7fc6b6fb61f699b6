package keyvault

import (
	"crypto/sha512"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"
)

const (
	seedIterations = 2048
	seedLength     = 64

	purpose  = 44
	coinType = 60
)

var validWordCounts = map[int]bool{12: true, 15: true, 18: true, 21: true, 24: true}

// normalizeMnemonic collapses whitespace and applies NFKD. It checks the word
// count only; the checksum word is not verified.
func normalizeMnemonic(mnemonic string) (string, error) {
	words := strings.Fields(mnemonic)
	if !validWordCounts[len(words)] {
		return "", fmt.Errorf("mnemonic must have 12, 15, 18, 21 or 24 words, got %d", len(words))
	}
	return norm.NFKD.String(strings.Join(words, " ")), nil
}

// seedFromMnemonic derives the 64-byte BIP-39 seed.
func seedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	normalized, err := normalizeMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	salt := norm.NFKD.String("mnemonic" + passphrase)
	return pbkdf2.Key([]byte(normalized), []byte(salt), seedIterations, seedLength, sha512.New), nil
}

// derivePrivateKey walks m/44'/60'/{index}'/0/0 and returns the 32-byte scalar.
func derivePrivateKey(seed []byte, index uint32) ([]byte, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return nil, fmt.Errorf("derivation index %d out of range", index)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	key, err := derivePath(master, []uint32{
		hdkeychain.HardenedKeyStart + purpose,
		hdkeychain.HardenedKeyStart + coinType,
		hdkeychain.HardenedKeyStart + index,
		0,
		0,
	})
	if err != nil {
		return nil, err
	}
	priv, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("extract private key: %w", err)
	}
	return priv.Serialize(), nil
}

// derivePath applies standard BIP-32 child derivation for each segment.
// Derive pads parent keys shorter than 32 bytes, unlike DeriveNonStandard.
func derivePath(key *hdkeychain.ExtendedKey, path []uint32) (*hdkeychain.ExtendedKey, error) {
	for _, segment := range path {
		child, err := key.Derive(segment)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", segment, err)
		}
		key = child
	}
	return key, nil
}

// DerivationPath renders the path used for index.
func DerivationPath(index uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'/0/0", purpose, coinType, index)
}
