// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"github.com/go-a2a/sqlexcel/a2a"
)

// DefaultPort is the port the route agent listens on by default.
const DefaultPort = 10002

// Card returns the agent card of the route agent served at url.
func Card(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        "Route Agent",
		Description: "Analyzes a query and decides which agent of the SQL to Excel pipeline handles it next",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming: true,
		},
		DefaultInputModes:  SupportedContentTypes,
		DefaultOutputModes: SupportedContentTypes,
		Skills: []a2a.AgentSkill{{
			ID:          "route_query",
			Name:        "Route query",
			Description: "Plans the pipeline for a query and names the next agent",
			Tags:        []string{"routing", "planning"},
			Examples:    []string{"Export last month's orders per region to Excel"},
		}},
	}
}
