// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package sqlagent

import (
	"github.com/go-a2a/sqlexcel/a2a"
)

// DefaultPort is the port the SQL agent listens on by default.
const DefaultPort = 10000

// Card returns the agent card of the SQL agent served at url.
func Card(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        "SQL Agent",
		Description: "Converts natural language questions into SQL queries and runs them against the database",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			Streaming:         true,
			PushNotifications: true,
		},
		DefaultInputModes:  SupportedContentTypes,
		DefaultOutputModes: SupportedContentTypes,
		Skills: []a2a.AgentSkill{{
			ID:          "text_to_sql",
			Name:        "Text to SQL",
			Description: "Converts a natural language query into SQL and returns the resulting rows",
			Tags:        []string{"text-to-sql", "database"},
			Examples:    []string{"Show me the ten most recent orders with their customer names"},
		}},
	}
}
