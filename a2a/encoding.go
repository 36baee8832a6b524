// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// PartKind is the discriminator of the [Part] union, carried in the JSON "type" field.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
	PartKindFile PartKind = "file"
)

// Part is one piece of content of a [Message] or an [Artifact].
//
// The set of implementations is closed: [*TextPart], [*DataPart] and [*FilePart].
// Consumers are expected to switch over all three.
type Part interface {
	Kind() PartKind
	isPart()
}

// TextPart carries plain text. The text may itself contain embedded JSON.
type TextPart struct {
	Text     string
	Metadata map[string]any
}

// DataPart carries an arbitrary JSON object.
type DataPart struct {
	Data     map[string]any
	Metadata map[string]any
}

// FilePart carries a file, inline or by reference.
type FilePart struct {
	File     FileContent
	Metadata map[string]any
}

var (
	_ Part = (*TextPart)(nil)
	_ Part = (*DataPart)(nil)
	_ Part = (*FilePart)(nil)
)

func (*TextPart) Kind() PartKind { return PartKindText }
func (*DataPart) Kind() PartKind { return PartKindData }
func (*FilePart) Kind() PartKind { return PartKindFile }

func (*TextPart) isPart() {}
func (*DataPart) isPart() {}
func (*FilePart) isPart() {}

// ErrNoInlineContent is returned by [FileContent.Decode] for files that are only referenced by URI.
var ErrNoInlineContent = errors.New("file has no inline content")

// FileContent is the payload of a [FilePart]. Bytes holds standard base64 encoded
// content; URI references content stored elsewhere. At most one of them is set.
type FileContent struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Bytes    string `json:"bytes,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// NewInlineFile returns a [FileContent] holding data inline.
func NewInlineFile(name, mimeType string, data []byte) FileContent {
	return FileContent{
		Name:     name,
		MimeType: mimeType,
		Bytes:    base64.StdEncoding.EncodeToString(data),
	}
}

// Decode returns the inline content of f.
func (f FileContent) Decode() ([]byte, error) {
	if f.Bytes == "" && f.URI != "" {
		return nil, ErrNoInlineContent
	}
	data, err := base64.StdEncoding.DecodeString(f.Bytes)
	if err != nil {
		return nil, fmt.Errorf("decode file %q: %w", f.Name, err)
	}
	return data, nil
}

// Validate reports whether f carries inline bytes or a URI, but not both.
func (f FileContent) Validate() error {
	if f.Bytes != "" && f.URI != "" {
		return errors.New("only one of bytes or uri may be set")
	}
	return nil
}

type textPartJSON struct {
	Type     PartKind       `json:"type"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type dataPartJSON struct {
	Type     PartKind       `json:"type"`
	Data     map[string]any `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type filePartJSON struct {
	Type     PartKind       `json:"type"`
	File     FileContent    `json:"file"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON implements [json.Marshaler].
func (p TextPart) MarshalJSON() ([]byte, error) {
	return json.Marshal(textPartJSON{Type: PartKindText, Text: p.Text, Metadata: p.Metadata})
}

// MarshalJSON implements [json.Marshaler].
func (p DataPart) MarshalJSON() ([]byte, error) {
	data := p.Data
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(dataPartJSON{Type: PartKindData, Data: data, Metadata: p.Metadata})
}

// MarshalJSON implements [json.Marshaler].
func (p FilePart) MarshalJSON() ([]byte, error) {
	return json.Marshal(filePartJSON{Type: PartKindFile, File: p.File, Metadata: p.Metadata})
}

// UnmarshalPart decodes a single JSON part into the [Part] variant named by its "type" field.
func UnmarshalPart(data []byte) (Part, error) {
	var head struct {
		Type PartKind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	switch head.Type {
	case PartKindText:
		var w textPartJSON
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return &TextPart{Text: w.Text, Metadata: w.Metadata}, nil

	case PartKindData:
		var w dataPartJSON
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		if w.Data == nil {
			return nil, errors.New("data part without data")
		}
		return &DataPart{Data: w.Data, Metadata: w.Metadata}, nil

	case PartKindFile:
		var w filePartJSON
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		if err := w.File.Validate(); err != nil {
			return nil, err
		}
		return &FilePart{File: w.File, Metadata: w.Metadata}, nil

	case "":
		return nil, errors.New("part type not found")

	default:
		return nil, fmt.Errorf("unknown part type: %s", head.Type)
	}
}

// Parts is an ordered list of [Part] values that knows how to decode itself.
type Parts []Part

// UnmarshalJSON implements [json.Unmarshaler].
func (ps *Parts) UnmarshalJSON(data []byte) error {
	var raws []jsontext.Value
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	parts := make(Parts, 0, len(raws))
	for i, raw := range raws {
		p, err := UnmarshalPart(raw)
		if err != nil {
			return fmt.Errorf("part %d: %w", i, err)
		}
		parts = append(parts, p)
	}
	*ps = parts
	return nil
}

// Texts returns the text of every [TextPart] in ps.
func (ps Parts) Texts() []string {
	var texts []string
	for _, p := range ps {
		if tp, ok := p.(*TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return texts
}

// Text joins the text of every [TextPart] in ps with newlines.
func (ps Parts) Text() string {
	return strings.Join(ps.Texts(), "\n")
}
