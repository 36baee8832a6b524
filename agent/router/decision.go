// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/kaptinlin/jsonrepair"
)

// Target is an agent a query can be routed to.
type Target string

const (
	TargetSQLAgent   Target = "sql_agent"
	TargetExcelAgent Target = "excel_agent"
	TargetUnknown    Target = "unknown"
)

// ParseTarget maps a model supplied agent name to a [Target]. Names outside the
// known set resolve to [TargetUnknown].
func ParseTarget(s string) Target {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetSQLAgent, TargetExcelAgent:
		return t
	default:
		return TargetUnknown
	}
}

// Decision is the routing verdict for one query.
type Decision struct {
	NextAgent     Target         `json:"next_agent"`
	QueryAnalysis string         `json:"query_analysis,omitempty"`
	ExecutionPlan string         `json:"execution_plan,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// ErrNoDecision is returned when a reply carries none of the decision fields.
var ErrNoDecision = errors.New("reply carries no routing decision")

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	fieldRes   = map[string]*regexp.Regexp{
		"next_agent":     fieldRe("next_agent"),
		"query_analysis": fieldRe("query_analysis"),
		"execution_plan": fieldRe("execution_plan"),
		"metadata":       fieldRe("metadata"),
	}
)

func fieldRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)"?` + name + `"?:\s*"(.*?)"`)
}

// ParseDecision reads a decision from a model reply. A fenced json block is
// tried first, then the whole reply after JSON repair, then a field by field
// scan of the raw text.
func ParseDecision(reply string) (*Decision, error) {
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		if obj, ok := decodeObject(m[1]); ok {
			return decisionFrom(obj), nil
		}
	}
	if span, ok := objectSpan(reply); ok {
		if repaired, err := jsonrepair.JSONRepair(span); err == nil {
			if obj, ok := decodeObject(repaired); ok {
				return decisionFrom(obj), nil
			}
		}
	}

	obj := make(map[string]any)
	for name, re := range fieldRes {
		if m := re.FindStringSubmatch(reply); m != nil {
			obj[name] = strings.TrimSpace(m[1])
		}
	}
	if len(obj) == 0 {
		return &Decision{NextAgent: TargetUnknown}, ErrNoDecision
	}
	return decisionFrom(obj), nil
}

// objectSpan returns s from its first opening to its last closing brace.
func objectSpan(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeObject(s string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

func decisionFrom(obj map[string]any) *Decision {
	d := &Decision{NextAgent: TargetUnknown}
	if s, ok := obj["next_agent"].(string); ok {
		d.NextAgent = ParseTarget(s)
	}
	d.QueryAnalysis, _ = obj["query_analysis"].(string)
	d.ExecutionPlan, _ = obj["execution_plan"].(string)
	switch md := obj["metadata"].(type) {
	case map[string]any:
		d.Metadata = md
	case string:
		if md != "" {
			d.Metadata = map[string]any{"note": md}
		}
	}
	return d
}
