package chain

import (
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

const maxNameLength = 64

// NormalizeName lowercases and trims a requested wrapper name. The same form
// is used for the existence check and for the wrap payload.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func ValidateName(name string) error {
	if name == "" {
		return clierr.New(clierr.CodeInputValidation, "name is required")
	}
	if len(name) > maxNameLength {
		return clierr.New(clierr.CodeInputValidation, "name is too long")
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return clierr.New(clierr.CodeInputValidation, "name must not contain whitespace")
		}
	}
	return nil
}

// NameNode derives the registry node for name under the app's symbol:
// keccak(keccak(0x00..00 ++ keccak(symbol)) ++ keccak(name)).
func NameNode(symbol, name string) common.Hash {
	root := crypto.Keccak256Hash(common.Hash{}.Bytes(), crypto.Keccak256([]byte(symbol)))
	return crypto.Keccak256Hash(root.Bytes(), crypto.Keccak256([]byte(name)))
}
