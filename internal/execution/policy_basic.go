package execution

import (
	"bytes"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

var (
	policyApproveSelector      = chain.ERC20ABI.Methods["approve"].ID
	policyAgencyWrapSelector   = chain.AgencyABI.Methods["wrap"].ID
	policyAgencyUnwrapSelector = chain.AgencyABI.Methods["unwrap"].ID
	policyRouterWrapSelector   = chain.RouterABI.Methods["wrap"].ID
)

// validateStepPolicy checks that calldata matches the declared step type and
// that proceeds and minted tokens go to the signing account.
func validateStepPolicy(step *ActionStep, from common.Address, data []byte) error {
	if step == nil {
		return clierr.New(clierr.CodeInternal, "missing action step")
	}
	if !common.IsHexAddress(step.Target) {
		return clierr.New(clierr.CodeInputValidation, "invalid step target address")
	}
	if len(data) < 4 {
		return clierr.New(clierr.CodeInputValidation, "step calldata is missing a selector")
	}

	switch step.Type {
	case StepTypeApproval:
		return validateApprovalPolicy(step, data)
	case StepTypeWrap:
		return validateWrapPolicy(step, from, data)
	case StepTypeUnwrap:
		return validateUnwrapPolicy(from, data)
	default:
		return clierr.New(clierr.CodeInputValidation, "unsupported step type "+string(step.Type))
	}
}

func validateApprovalPolicy(step *ActionStep, data []byte) error {
	if !bytes.Equal(data[:4], policyApproveSelector) {
		return clierr.New(clierr.CodeInputValidation, "approval step must use ERC20 approve(spender,amount)")
	}
	args, err := chain.ERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 2 {
		return clierr.New(clierr.CodeInputValidation, "approval step calldata is invalid")
	}
	spender, ok := toAddress(args[0])
	if !ok || spender == (common.Address{}) {
		return clierr.New(clierr.CodeInputValidation, "approval step has invalid spender")
	}
	amount, ok := toBigInt(args[1])
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeInputValidation, "approval step has invalid approval amount")
	}
	if expected := expectedAddress(step, "spender"); expected != nil && *expected != spender {
		return clierr.New(clierr.CodeInputValidation, "approval spender does not match the planned spender")
	}
	return nil
}

func validateWrapPolicy(step *ActionStep, from common.Address, data []byte) error {
	switch {
	case bytes.Equal(data[:4], policyAgencyWrapSelector):
		args, err := chain.AgencyABI.Methods["wrap"].Inputs.Unpack(data[4:])
		if err != nil || len(args) != 2 {
			return clierr.New(clierr.CodeInputValidation, "wrap step calldata is invalid")
		}
		to, ok := toAddress(args[0])
		if !ok || to != from {
			return clierr.New(clierr.CodeInputValidation, "wrap recipient must be the signing account")
		}
		return nil
	case bytes.Equal(data[:4], policyRouterWrapSelector):
		args, err := chain.RouterABI.Methods["wrap"].Inputs.Unpack(data[4:])
		if err != nil || len(args) != 3 {
			return clierr.New(clierr.CodeInputValidation, "router wrap step calldata is invalid")
		}
		agency, ok := toAddress(args[0])
		if !ok {
			return clierr.New(clierr.CodeInputValidation, "router wrap step has invalid agency")
		}
		if expected := expectedAddress(step, "agency"); expected != nil && *expected != agency {
			return clierr.New(clierr.CodeInputValidation, "router wrap agency does not match the planned agency")
		}
		return nil
	default:
		return clierr.New(clierr.CodeInputValidation, "wrap step must call agency or router wrap")
	}
}

func validateUnwrapPolicy(from common.Address, data []byte) error {
	if !bytes.Equal(data[:4], policyAgencyUnwrapSelector) {
		return clierr.New(clierr.CodeInputValidation, "unwrap step must call agency unwrap")
	}
	args, err := chain.AgencyABI.Methods["unwrap"].Inputs.Unpack(data[4:])
	if err != nil || len(args) != 3 {
		return clierr.New(clierr.CodeInputValidation, "unwrap step calldata is invalid")
	}
	to, ok := toAddress(args[0])
	if !ok || to != from {
		return clierr.New(clierr.CodeInputValidation, "unwrap proceeds must go to the signing account")
	}
	return nil
}

func expectedAddress(step *ActionStep, key string) *common.Address {
	if step.ExpectedOutputs == nil {
		return nil
	}
	raw := strings.TrimSpace(step.ExpectedOutputs[key])
	if !common.IsHexAddress(raw) {
		return nil
	}
	addr := common.HexToAddress(raw)
	return &addr
}

func toAddress(v any) (common.Address, bool) {
	switch value := v.(type) {
	case common.Address:
		return value, true
	case *common.Address:
		if value == nil {
			return common.Address{}, false
		}
		return *value, true
	default:
		return common.Address{}, false
	}
}

func toBigInt(v any) (*big.Int, bool) {
	switch value := v.(type) {
	case *big.Int:
		if value == nil {
			return nil, false
		}
		return value, true
	case big.Int:
		cpy := value
		return &cpy, true
	default:
		return nil, false
	}
}
