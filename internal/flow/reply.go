package flow

import (
	"fmt"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

type Kind string

const (
	KindMenu   Kind = "menu"
	KindPrompt Kind = "prompt"
	KindInfo   Kind = "info"
	KindResult Kind = "result"
	KindSecret Kind = "secret"
	KindError  Kind = "error"
)

type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Button is a follow-up the transport may offer as a menu entry.
type Button struct {
	Label  string `json:"label"`
	Action Action `json:"action"`
	Arg    string `json:"arg,omitempty"`
}

// Reply is the transport-neutral answer to one input. Transports decide how
// to lay it out.
type Reply struct {
	Kind        Kind     `json:"kind"`
	Text        string   `json:"text"`
	Fields      []Field  `json:"fields,omitempty"`
	Buttons     []Button `json:"buttons,omitempty"`
	TxHash      string   `json:"tx_hash,omitempty"`
	ExplorerURL string   `json:"explorer_url,omitempty"`
	ErrorType   string   `json:"error_type,omitempty"`
}

func prompt(text string, fields ...Field) Reply {
	return Reply{Kind: KindPrompt, Text: text, Fields: fields, Buttons: []Button{{Label: "Cancel", Action: ActionCancel}}}
}

func info(text string, fields ...Field) Reply {
	return Reply{Kind: KindInfo, Text: text, Fields: fields}
}

// errorReply turns a failure into the message shown to the user. Internal
// detail stays in the logs for codes that could leak infrastructure.
func errorReply(err error) Reply {
	code := clierr.CodeOf(err)
	r := Reply{Kind: KindError, ErrorType: code.Type()}
	msg := err.Error()
	if e, ok := clierr.As(err); ok {
		msg = e.Message
	}
	switch code {
	case clierr.CodeInputValidation, clierr.CodeSlippageExceeded, clierr.CodeRateLimited, clierr.CodeUsage:
		r.Text = msg
	case clierr.CodeSimulationRevert:
		r.Text = fmt.Sprintf("Transaction would revert, nothing was sent: %s", msg)
	case clierr.CodeAuthorizationDenied:
		r.Text = "You neither own this token nor are approved to spend it."
	case clierr.CodeChainRead:
		r.Text = "Could not read chain state. Please try again."
	case clierr.CodeTimeout:
		r.Text = "The transaction was sent but not confirmed in time. Check the explorer before retrying."
	case clierr.CodeUnavailable:
		r.Text = "A dependent service is unavailable. Please try again later."
	case clierr.CodeAccountState, clierr.CodePersistence:
		r.Text = "Your account could not be loaded. Nothing was sent."
	default:
		r.Text = "Something went wrong. Please start again."
	}
	return r
}
