package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/agencybot/internal/config"
	"github.com/ggonzalez94/agencybot/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []model.HeldToken{{TokenID: "7", Name: "alice"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"token_id"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["token_id"] != "7" {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["name"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    model.AccountAddress{ExternalID: 42, Address: "0xabc", ChainID: 11155111},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "address=0xabc") || !strings.Contains(buf.String(), "external_id=42") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderJSONErrorEnvelope(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: false,
		Data:    []any{},
		Error:   &model.ErrorBody{Code: 20, Type: "input_validation", Message: "invalid address"},
		Meta:    model.EnvelopeMeta{Command: "agency quote", Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "json"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var decoded model.Envelope
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if decoded.Success || decoded.Error == nil || decoded.Error.Type != "input_validation" {
		t.Fatalf("unexpected envelope: %s", buf.String())
	}
	if decoded.Meta.Command != "agency quote" {
		t.Fatalf("unexpected command: %s", decoded.Meta.Command)
	}
}

func TestRenderPlainFlattensNestedData(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data: []map[string]any{{
			"action_id":   "act_1",
			"constraints": map[string]any{"max_cost": "1025"},
			"steps":       []map[string]any{{"tx_hash": "0xfeed"}},
			"description": "wrap alice",
		}},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain", ResultsOnly: true}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	want := `action_id=act_1 constraints.max_cost=1025 description="wrap alice" steps.0.tx_hash=0xfeed`
	if strings.TrimSpace(buf.String()) != want {
		t.Fatalf("unexpected plain output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRenderSelectDottedPath(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    map[string]any{"status": "completed", "constraints": map[string]any{"min_proceeds": "880"}},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"constraints.min_proceeds", "missing.path"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out["constraints.min_proceeds"] != "880" {
		t.Fatalf("unexpected projection: %s", buf.String())
	}
}
