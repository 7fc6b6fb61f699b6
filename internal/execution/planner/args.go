package planner

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)
	stringType, _  = abi.NewType("string", "", nil)

	agencyArgs = abi.Arguments{{Name: "slippagePrice", Type: uint256Type}, {Name: "data", Type: bytesType}}
	nameArgs   = abi.Arguments{{Name: "name", Type: stringType}}
)

// EncodeAgencyArgs builds the opaque data argument shared by agency wrap and
// unwrap: abi.encode(uint256 slippagePrice, bytes data).
func EncodeAgencyArgs(slippagePrice *big.Int, data []byte) ([]byte, error) {
	if slippagePrice == nil {
		slippagePrice = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	return agencyArgs.Pack(slippagePrice, data)
}

// EncodeNameArgs is the name payload nested inside a wrap's agency args.
func EncodeNameArgs(name string) ([]byte, error) {
	return nameArgs.Pack(name)
}

// DecodeAgencyArgs reverses EncodeAgencyArgs.
func DecodeAgencyArgs(raw []byte) (*big.Int, []byte, error) {
	values, err := agencyArgs.Unpack(raw)
	if err != nil {
		return nil, nil, err
	}
	price, _ := values[0].(*big.Int)
	data, _ := values[1].([]byte)
	return price, data, nil
}
