package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	root := errors.New("connection refused")
	err := Wrap(CodeChainRead, "read total supply", root)
	if !errors.Is(err, root) {
		t.Fatal("expected wrapped error to unwrap to root cause")
	}
	if got := err.Error(); got != "read total supply: connection refused" {
		t.Fatalf("unexpected message: %s", got)
	}
}

func TestIsMatchesOutermostCode(t *testing.T) {
	inner := New(CodeSimulationRevert, "simulate wrap")
	outer := fmt.Errorf("flow aborted: %w", inner)
	if !Is(outer, CodeSimulationRevert) {
		t.Fatal("expected code match through fmt wrapping")
	}
	if Is(outer, CodeSlippageExceeded) {
		t.Fatal("unexpected code match")
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("expected zero exit code for nil error")
	}
	if ExitCode(errors.New("plain")) != int(CodeInternal) {
		t.Fatal("expected internal exit code for untyped error")
	}
	if ExitCode(New(CodeAuthorizationDenied, "denied")) != 24 {
		t.Fatal("expected authorization exit code")
	}
}

func TestCodeType(t *testing.T) {
	if CodeSlippageExceeded.Type() != "slippage_exceeded" {
		t.Fatalf("unexpected type: %s", CodeSlippageExceeded.Type())
	}
	if Code(999).Type() != "internal_error" {
		t.Fatal("expected unknown code to map to internal_error")
	}
}
