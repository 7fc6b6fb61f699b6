package flow

import (
	"errors"
	"strings"
	"testing"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

func TestParseInput(t *testing.T) {
	cases := []struct {
		line   string
		action Action
		arg    string
		text   string
	}{
		{line: "/start", action: ActionStart},
		{line: "/Select 0xabc ", action: ActionSelect, arg: "0xabc"},
		{line: "/unwrap@agencybot 7", action: ActionUnwrap, arg: "7"},
		{line: "/key", action: ActionExportKey},
		{line: "/list", action: ActionAgencies},
		{line: "/nope", action: Action("nope")},
		{line: "  0.5 ", text: "0.5"},
	}
	for _, tc := range cases {
		in := ParseInput(42, tc.line)
		if in.ExternalID != 42 || in.Action != tc.action || in.Arg != tc.arg || in.Text != tc.text {
			t.Fatalf("ParseInput(%q) = %+v", tc.line, in)
		}
	}
}

func TestButtonCommandRoundTrips(t *testing.T) {
	b := Button{Label: "Open", Action: ActionSelect, Arg: "0xabc"}
	in := ParseInput(1, b.Command())
	if in.Action != ActionSelect || in.Arg != "0xabc" {
		t.Fatalf("unexpected parse of %q: %+v", b.Command(), in)
	}
}

func TestErrorReplyHidesInfrastructureDetail(t *testing.T) {
	r := errorReply(clierr.Wrap(clierr.CodePersistence, "save agency", errors.New("dial tcp 10.0.0.3:3306: refused")))
	if r.Kind != KindError || r.ErrorType != "persistence" {
		t.Fatalf("unexpected reply %+v", r)
	}
	if r.Text == "" || strings.Contains(r.Text, "10.0.0.3") {
		t.Fatalf("expected generic text, got %q", r.Text)
	}
	v := errorReply(clierr.New(clierr.CodeSlippageExceeded, "max cost 1 is below quoted total 2"))
	if v.Text != "max cost 1 is below quoted total 2" {
		t.Fatalf("expected message to pass through, got %q", v.Text)
	}
}
