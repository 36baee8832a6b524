// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package excelagent

import (
	"github.com/go-a2a/sqlexcel/a2a"
)

// DefaultPort is the port the Excel agent listens on by default.
const DefaultPort = 10001

// Card returns the agent card of the Excel agent served at url.
func Card(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:        "Excel Export Agent",
		Description: "Converts SQL query results into formatted Excel workbooks",
		URL:         url,
		Version:     "1.0.0",
		Capabilities: a2a.AgentCapabilities{
			PushNotifications: true,
		},
		DefaultInputModes:  []string{"text", "data"},
		DefaultOutputModes: SupportedContentTypes,
		Skills: []a2a.AgentSkill{{
			ID:          "sql_to_excel",
			Name:        "SQL to Excel",
			Description: "Exports SQL query results as an Excel workbook with optional styling and a metadata sheet",
			Tags:        []string{"excel", "export", "xlsx"},
			Examples:    []string{"Export the monthly sales totals to Excel using the professional style"},
		}},
	}
}
