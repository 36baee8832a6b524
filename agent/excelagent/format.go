// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package excelagent

import (
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
)

// StyleTemplate names a predefined look of the data sheet.
type StyleTemplate string

const (
	StyleDefault      StyleTemplate = "default"
	StyleProfessional StyleTemplate = "professional"
	StyleMinimal      StyleTemplate = "minimal"
	StyleColorful     StyleTemplate = "colorful"
)

// Valid reports whether s is a known template.
func (s StyleTemplate) Valid() bool {
	switch s {
	case StyleDefault, StyleProfessional, StyleMinimal, StyleColorful:
		return true
	default:
		return false
	}
}

// MetadataSheet names the sheet describing the export.
const MetadataSheet = "Metadata"

// FormatOptions controls how rows are laid out in the workbook.
type FormatOptions struct {
	SheetName        string        `json:"sheet_name"`
	IncludeHeaders   bool          `json:"include_headers"`
	AutoFilter       bool          `json:"auto_filter"`
	FreezePanes      bool          `json:"freeze_panes"`
	ColumnWidthAuto  bool          `json:"column_width_auto"`
	IncludeTimestamp bool          `json:"include_timestamp"`
	IncludeQuery     bool          `json:"include_query"`
	IncludeMetadata  bool          `json:"include_metadata"`
	StyleTemplate    StyleTemplate `json:"style_template"`
}

// DefaultFormatOptions returns the options used for keys a request leaves out.
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		SheetName:        "Data",
		IncludeHeaders:   true,
		AutoFilter:       true,
		FreezePanes:      true,
		ColumnWidthAuto:  true,
		IncludeTimestamp: true,
		IncludeQuery:     true,
		IncludeMetadata:  true,
		StyleTemplate:    StyleDefault,
	}
}

// ParseFormatOptions overlays the keys of m onto [DefaultFormatOptions].
// Unknown keys are ignored.
func ParseFormatOptions(m map[string]any) (FormatOptions, error) {
	opts := DefaultFormatOptions()
	if len(m) == 0 {
		return opts, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return opts, fmt.Errorf("format_options: %w", err)
	}
	// Unmarshal merges into the defaults already held by opts.
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("format_options: %w", err)
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate reports options no workbook can be written with.
func (o FormatOptions) Validate() error {
	if !o.StyleTemplate.Valid() {
		return fmt.Errorf("format_options: unknown style_template %q", o.StyleTemplate)
	}
	name := o.SheetName
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("format_options: sheet_name is empty")
	case len([]rune(name)) > 31:
		return fmt.Errorf("format_options: sheet_name %q is longer than 31 characters", name)
	case strings.ContainsAny(name, `[]:*?/\`):
		return fmt.Errorf("format_options: sheet_name %q contains a character Excel forbids", name)
	case o.IncludeMetadata && strings.EqualFold(name, MetadataSheet):
		return fmt.Errorf("format_options: sheet_name %q collides with the metadata sheet", name)
	}
	return nil
}
