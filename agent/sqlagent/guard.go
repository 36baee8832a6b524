// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package sqlagent

import (
	"errors"
	"fmt"
	"strings"
)

// StatementError reports a statement the agent refuses to run.
type StatementError struct {
	Statement string
	Reason    string
}

// Error implements the error interface.
func (e *StatementError) Error() string {
	return fmt.Sprintf("statement rejected: %s", e.Reason)
}

var readOnlyKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"EXPLAIN": true,
}

// writeKeywords change data, schema or session state wherever they appear,
// including in a WITH body (WITH x AS (...) DELETE ...) and in SELECT ... INTO.
// REPLACE is also a string function; only a leading REPLACE is rejected.
var writeKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"MERGE":    true,
	"UPSERT":   true,
	"INTO":     true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"GRANT":    true,
	"REVOKE":   true,
	"ATTACH":   true,
	"DETACH":   true,
	"PRAGMA":   true,
	"COPY":     true,
	"VACUUM":   true,
	"REINDEX":  true,
	"LOCK":     true,
	"CALL":     true,
}

// CheckReadOnly accepts a single SELECT, WITH or EXPLAIN statement that names
// no data-changing keyword outside of comments and quoted text. One trailing
// semicolon is allowed.
func CheckReadOnly(stmt string) error {
	words, multiple, err := scanStatement(stmt)
	if err != nil {
		return &StatementError{Statement: stmt, Reason: err.Error()}
	}
	if len(words) == 0 {
		return &StatementError{Statement: stmt, Reason: "empty statement"}
	}
	keyword := words[0]
	if c := keyword[0]; c < 'A' || c > 'Z' {
		return &StatementError{Statement: stmt, Reason: "no sql keyword"}
	}
	if !readOnlyKeywords[keyword] {
		return &StatementError{Statement: stmt, Reason: fmt.Sprintf("%s statements are not allowed", keyword)}
	}
	if multiple {
		return &StatementError{Statement: stmt, Reason: "multiple statements are not allowed"}
	}
	for _, w := range words[1:] {
		if writeKeywords[w] {
			return &StatementError{Statement: stmt, Reason: fmt.Sprintf("%s is not allowed in a read-only query", w)}
		}
	}
	return nil
}

// scanStatement returns the upper-cased words of stmt, skipping comments and
// quoted text, and reports whether anything follows a semicolon.
func scanStatement(stmt string) (words []string, multiple bool, err error) {
	start := -1
	flush := func(end int) {
		if start >= 0 {
			words = append(words, strings.ToUpper(stmt[start:end]))
			start = -1
		}
	}

	ended := false
	for i := 0; i < len(stmt); i++ {
		c := stmt[i]
		if isWordByte(c) {
			if ended {
				multiple = true
			}
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)

		switch {
		case strings.HasPrefix(stmt[i:], "--"):
			nl := strings.IndexByte(stmt[i:], '\n')
			if nl < 0 {
				return words, multiple, nil
			}
			i += nl
		case strings.HasPrefix(stmt[i:], "/*"):
			end := strings.Index(stmt[i+2:], "*/")
			if end < 0 {
				return nil, false, errors.New("unterminated comment")
			}
			i += 2 + end + 1
		case c == '\'' || c == '"' || c == '`':
			if ended {
				multiple = true
			}
			end := strings.IndexByte(stmt[i+1:], c)
			if end < 0 {
				return nil, false, fmt.Errorf("unterminated %c quote", c)
			}
			i += 1 + end
		case c == ';':
			ended = true
		case c != ' ' && c != '\t' && c != '\r' && c != '\n':
			if ended {
				multiple = true
			}
		}
	}
	flush(len(stmt))
	return words, multiple, nil
}

func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}
