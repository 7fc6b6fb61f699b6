// Package out renders command envelopes as indented JSON or as flat
// key=value lines.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ggonzalez94/agencybot/internal/config"
	"github.com/ggonzalez94/agencybot/internal/model"
)

func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := normalizeValue(env.Data)
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.ResultsOnly {
		if settings.OutputMode == "json" {
			return writeJSON(w, data)
		}
		return renderPlain(w, data)
	}

	if settings.OutputMode == "json" {
		env.Data = data
		return writeJSON(w, env)
	}

	plain := map[string]any{
		"success": env.Success,
		"command": env.Meta.Command,
	}
	if env.Error != nil {
		plain["error"] = env.Error
	} else {
		plain["data"] = data
	}
	if len(env.Warnings) > 0 {
		plain["warnings"] = env.Warnings
	}
	return renderPlain(w, plain)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderPlain prints one line per list item, or a single line otherwise.
func renderPlain(w io.Writer, data any) error {
	v := normalizeValue(data)
	items, ok := v.([]any)
	if !ok {
		_, err := fmt.Fprintln(w, toLine(v))
		return err
	}
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "[]")
		return err
	}
	for _, item := range items {
		if _, err := fmt.Fprintln(w, toLine(item)); err != nil {
			return err
		}
	}
	return nil
}

// project keeps the selected fields. A field may be a dotted path into
// nested objects ("constraints.max_cost"); the output key is the path.
func project(data any, fields []string) any {
	switch t := data.(type) {
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return data
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := lookup(m, f); ok {
			out[f] = v
		}
	}
	return out
}

func lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func normalizeValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}

// toLine flattens v into sorted key=value pairs. Nested objects and lists use
// dotted keys such as steps.0.tx_hash.
func toLine(v any) string {
	flat := map[string]string{}
	flatten("", v, flat)
	if len(flat) == 0 {
		return "{}"
	}
	if only, ok := flat[""]; ok && len(flat) == 1 {
		return only
	}
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+flat[k])
	}
	return strings.Join(parts, " ")
}

func flatten(prefix string, v any, into map[string]string) {
	join := func(key string) string {
		if prefix == "" {
			return key
		}
		return prefix + "." + key
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			flatten(join(k), child, into)
		}
	case []any:
		if len(t) == 0 && prefix != "" {
			into[prefix] = "[]"
		}
		for i, child := range t {
			flatten(join(strconv.Itoa(i)), child, into)
		}
	case nil:
		if prefix != "" {
			into[prefix] = "null"
		}
	case string:
		into[prefix] = quoteIfNeeded(t)
	default:
		buf, err := json.Marshal(t)
		if err != nil {
			into[prefix] = fmt.Sprint(t)
			return
		}
		into[prefix] = string(buf)
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
