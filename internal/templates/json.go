package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CleanJSON rewrites theme JSON into strict JSON. It removes // and /* */
// comments outside strings, collapses repeated commas and drops trailing
// commas before a closing brace or bracket.
func CleanJSON(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	out := make([]byte, 0, len(data))
	inString := false
	pendingComma := false

	for i := 0; i < len(data); i++ {
		c := data[i]

		if inString {
			out = append(out, c)
			switch c {
			case '\\':
				if i+1 < len(data) {
					i++
					out = append(out, data[i])
				}
			case '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
			continue
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			end := bytes.Index(data[i+2:], []byte("*/"))
			if end < 0 {
				i = len(data)
			} else {
				i += end + 3
			}
			continue
		case c == ',':
			pendingComma = true
			continue
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			out = append(out, c)
			continue
		case c == '}' || c == ']':
			pendingComma = false
		}

		if pendingComma {
			if last := lastSignificant(out); last != '{' && last != '[' && last != 0 {
				out = append(out, ',')
			}
			pendingComma = false
		}
		if c == '"' {
			inString = true
		}
		out = append(out, c)
	}
	return out
}

func lastSignificant(b []byte) byte {
	for i := len(b) - 1; i >= 0; i-- {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b[i]
	}
	return 0
}

// UnmarshalTolerant cleans data and decodes it into v.
func UnmarshalTolerant(data []byte, v any) error {
	if err := json.Unmarshal(CleanJSON(data), v); err != nil {
		return fmt.Errorf("invalid theme JSON: %w", err)
	}
	return nil
}
