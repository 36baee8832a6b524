// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package excelagent_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-a2a/sqlexcel/agent/excelagent"
)

func TestParseFormatOptions(t *testing.T) {
	tests := map[string]struct {
		in      map[string]any
		want    func(*excelagent.FormatOptions)
		wantErr bool
	}{
		"nil keeps defaults": {
			want: func(*excelagent.FormatOptions) {},
		},
		"overrides": {
			in: map[string]any{
				"sheet_name":     "Sales",
				"auto_filter":    false,
				"style_template": "professional",
				"unknown_key":    42,
			},
			want: func(o *excelagent.FormatOptions) {
				o.SheetName = "Sales"
				o.AutoFilter = false
				o.StyleTemplate = excelagent.StyleProfessional
			},
		},
		"metadata sheet name allowed without metadata": {
			in: map[string]any{"sheet_name": "Metadata", "include_metadata": false},
			want: func(o *excelagent.FormatOptions) {
				o.SheetName = "Metadata"
				o.IncludeMetadata = false
			},
		},
		"unknown style":       {in: map[string]any{"style_template": "neon"}, wantErr: true},
		"empty sheet name":    {in: map[string]any{"sheet_name": "  "}, wantErr: true},
		"long sheet name":     {in: map[string]any{"sheet_name": "abcdefghijklmnopqrstuvwxyz123456"}, wantErr: true},
		"forbidden character": {in: map[string]any{"sheet_name": "Q1/Q2"}, wantErr: true},
		"metadata collision":  {in: map[string]any{"sheet_name": "metadata"}, wantErr: true},
		"wrong type":          {in: map[string]any{"auto_filter": "yes"}, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := excelagent.ParseFormatOptions(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseFormatOptions() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFormatOptions() failed: %v", err)
			}
			want := excelagent.DefaultFormatOptions()
			tt.want(&want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("ParseFormatOptions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
