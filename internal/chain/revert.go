package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	errorStringSelector = common.FromHex("0x08c379a0")
	panicSelector       = common.FromHex("0x4e487b71")
)

// IsRevert reports whether err is an EVM execution revert rather than a
// transport or node failure.
func IsRevert(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := revertData(err); ok {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert")
}

// RevertReason returns the decoded revert reason carried by err, or "".
func RevertReason(err error) string {
	data, ok := revertData(err)
	if !ok {
		return ""
	}
	return DecodeRevertData(data)
}

// DecodeRevertData renders Error(string), Panic(uint256) and custom error
// payloads in a readable form.
func DecodeRevertData(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	selector := data[:4]
	switch {
	case bytes.Equal(selector, errorStringSelector):
		reason, err := abi.UnpackRevert(data)
		if err != nil {
			return ""
		}
		return reason
	case bytes.Equal(selector, panicSelector) && len(data) >= 36:
		code := new(big.Int).SetBytes(data[4:36])
		return fmt.Sprintf("panic code 0x%x", code)
	default:
		return fmt.Sprintf("custom error 0x%x", selector)
	}
}

func revertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		if !strings.HasPrefix(v, "0x") {
			return nil, false
		}
		return common.FromHex(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}
