package flow

import "strings"

// Action names a menu entry or command. An empty Action means the input is
// free text answering the current prompt.
type Action string

const (
	ActionStart     Action = "start"
	ActionWallet    Action = "wallet"
	ActionExportKey Action = "export_key"
	ActionAddAgency Action = "add_agency"
	ActionAgencies  Action = "agencies"
	ActionSelect    Action = "select"
	ActionDelete    Action = "delete"
	ActionApprove   Action = "approve"
	ActionCheck     Action = "check"
	ActionTokens    Action = "tokens"
	ActionWrap      Action = "wrap"
	ActionUnwrap    Action = "unwrap"
	ActionCancel    Action = "cancel"
)

var actionAliases = map[string]Action{
	"start":      ActionStart,
	"menu":       ActionStart,
	"wallet":     ActionWallet,
	"key":        ActionExportKey,
	"export_key": ActionExportKey,
	"add":        ActionAddAgency,
	"add_agency": ActionAddAgency,
	"agencies":   ActionAgencies,
	"list":       ActionAgencies,
	"select":     ActionSelect,
	"delete":     ActionDelete,
	"approve":    ActionApprove,
	"check":      ActionCheck,
	"tokens":     ActionTokens,
	"wrap":       ActionWrap,
	"unwrap":     ActionUnwrap,
	"cancel":     ActionCancel,
}

// Input is one inbound message from a user.
type Input struct {
	ExternalID int64
	Action     Action
	Arg        string
	Text       string
}

// ParseInput reads "/command [arg]" lines as actions and anything else as
// free text. Unknown commands keep their name so the engine can reject them.
func ParseInput(externalID int64, line string) Input {
	line = strings.TrimSpace(line)
	in := Input{ExternalID: externalID}
	if !strings.HasPrefix(line, "/") {
		in.Text = line
		return in
	}
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	// Telegram-style "/cmd@botname" addressing.
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(strings.TrimSpace(name))
	if action, ok := actionAliases[name]; ok {
		in.Action = action
	} else {
		in.Action = Action(name)
	}
	in.Arg = strings.TrimSpace(arg)
	return in
}

// Command renders b back into the line ParseInput accepts.
func (b Button) Command() string {
	if b.Arg == "" {
		return "/" + string(b.Action)
	}
	return "/" + string(b.Action) + " " + b.Arg
}
