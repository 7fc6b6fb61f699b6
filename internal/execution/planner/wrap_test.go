package planner

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/agencybot/internal/chain"
	clierr "github.com/ggonzalez94/agencybot/internal/errors"
	"github.com/ggonzalez94/agencybot/internal/id"
)

func TestBuildWrapActionNativePath(t *testing.T) {
	action, err := BuildWrapAction(WrapRequest{
		Chain:   id.ChainFromID(11155111),
		Sender:  testSender,
		Agency:  testAgency,
		Router:  testRouter,
		Native:  true,
		Name:    "alice",
		MaxCost: big.NewInt(1_000_000),
	})
	if err != nil {
		t.Fatalf("BuildWrapAction failed: %v", err)
	}
	if action.Route != RouteAgency {
		t.Fatalf("expected agency route, got %s", action.Route)
	}
	step := action.Steps[0]
	if step.Target != testAgency.Hex() || step.Value != "1000000" {
		t.Fatalf("unexpected step target/value: %s %s", step.Target, step.Value)
	}
	data := common.FromHex(step.Data)
	args, err := chain.AgencyABI.Methods["wrap"].Inputs.Unpack(data[4:])
	if err != nil {
		t.Fatalf("decode wrap: %v", err)
	}
	if args[0].(common.Address) != testSender {
		t.Fatalf("expected wrap to sender, got %v", args[0])
	}
	price, nested, err := DecodeAgencyArgs(args[1].([]byte))
	if err != nil {
		t.Fatalf("decode agency args: %v", err)
	}
	if price.Int64() != 1_000_000 {
		t.Fatalf("expected slippage price to equal max cost, got %s", price)
	}
	name, err := nameArgs.Unpack(nested)
	if err != nil {
		t.Fatalf("decode name args: %v", err)
	}
	if name[0].(string) != "alice" {
		t.Fatalf("unexpected name payload %v", name[0])
	}
}

func TestBuildWrapActionRouterPath(t *testing.T) {
	action, err := BuildWrapAction(WrapRequest{
		Chain:   id.ChainFromID(11155111),
		Sender:  testSender,
		Agency:  testAgency,
		Router:  testRouter,
		Name:    "bob",
		MaxCost: big.NewInt(500),
	})
	if err != nil {
		t.Fatalf("BuildWrapAction failed: %v", err)
	}
	if action.Route != RouteRouter {
		t.Fatalf("expected router route, got %s", action.Route)
	}
	step := action.Steps[0]
	if step.Target != testRouter.Hex() || step.Value != "0" {
		t.Fatalf("unexpected step target/value: %s %s", step.Target, step.Value)
	}
	if step.ExpectedOutputs["agency"] != testAgency.Hex() {
		t.Fatalf("expected planned agency, got %v", step.ExpectedOutputs)
	}
	args, err := chain.RouterABI.Methods["wrap"].Inputs.Unpack(common.FromHex(step.Data)[4:])
	if err != nil {
		t.Fatalf("decode router wrap: %v", err)
	}
	if args[0].(common.Address) != testAgency || args[1].(*big.Int).Int64() != 500 || args[2].(string) != "bob" {
		t.Fatalf("unexpected router args %v", args)
	}
}

func TestBuildWrapActionValidation(t *testing.T) {
	base := WrapRequest{Chain: id.ChainFromID(11155111), Sender: testSender, Agency: testAgency, Name: "carol", MaxCost: big.NewInt(1)}

	noRouter := base
	if _, err := BuildWrapAction(noRouter); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected missing router to be a usage error, got %v", err)
	}
	zeroCost := base
	zeroCost.Native = true
	zeroCost.MaxCost = big.NewInt(0)
	if _, err := BuildWrapAction(zeroCost); !clierr.Is(err, clierr.CodeInputValidation) {
		t.Fatalf("expected zero max cost to fail validation, got %v", err)
	}
	badName := base
	badName.Native = true
	badName.Name = "two words"
	if _, err := BuildWrapAction(badName); !clierr.Is(err, clierr.CodeInputValidation) {
		t.Fatalf("expected bad name to fail validation, got %v", err)
	}
}
