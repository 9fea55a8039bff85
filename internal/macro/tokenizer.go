// tokenizer.go — character-driven parameter tokenizer for one command's
// argument string (§4.1). Handles KEY=value, KEY="quoted value", bare
// TOKEN, "quoted token", embedded %"..." runs inside values, and the
// \n \t \" \\ escape set.
package macro

import (
	"strings"

	"github.com/brennhill/macrorun/internal/vars"
)

// tokenizeParams walks argString left to right, skipping inter-token
// whitespace, producing one Parameter per token/pair. It never errors: any
// malformed trailing quote is treated as "read to end of string".
func tokenizeParams(argString string) []Parameter {
	var params []Parameter
	runes := []rune(argString)
	i := 0
	n := len(runes)

	skipSpace := func() {
		for i < n && isSpace(runes[i]) {
			i++
		}
	}

	for {
		skipSpace()
		if i >= n {
			break
		}

		if runes[i] == '"' {
			// Leading-quote token: could be a quoted key (if followed by '=')
			// or a standalone quoted positional value.
			start := i
			raw, consumed := readQuoted(runes, i)
			i = consumed
			if i < n && runes[i] == '=' {
				i++ // consume '='
				key := unquote(raw)
				valRaw, valConsumed := readValue(runes, i)
				i = valConsumed
				params = append(params, makeParam(key, valRaw, false))
				continue
			}
			// Standalone quoted token: positional, stored with value "true"
			_ = start
			params = append(params, Parameter{
				Key:       unquote(raw),
				Value:     "true",
				RawValue:  raw,
				Positional: true,
				Variables: extractRefsOn(raw),
			})
			continue
		}

		// Bare token: read until whitespace or '=' (outside quotes — none
		// possible here since we're not inside a quote yet).
		start := i
		for i < n && !isSpace(runes[i]) && runes[i] != '=' {
			i++
		}
		token := string(runes[start:i])

		if i < n && runes[i] == '=' {
			i++ // consume '='
			valRaw, valConsumed := readValue(runes, i)
			i = valConsumed
			params = append(params, makeParam(token, valRaw, false))
			continue
		}

		// Bare positional/flag token.
		params = append(params, Parameter{
			Key:       token,
			Value:     "true",
			RawValue:  token,
			Positional: true,
			Variables: extractRefsOn(token),
		})
	}

	return params
}

func makeParam(key, rawValue string, positional bool) Parameter {
	return Parameter{
		Key:       key,
		Value:     unquote(rawValue),
		RawValue:  rawValue,
		Positional: positional,
		Variables: extractRefsOn(rawValue),
	}
}

// readValue reads a parameter value starting at position i. If the value
// begins with '"', it is a fully-quoted string (escapes honored). Otherwise
// it reads until whitespace that is outside any "..." run, so values like
// %"ice cream":%"Apple Pie" tokenize as one value.
func readValue(runes []rune, i int) (string, int) {
	n := len(runes)
	if i < n && runes[i] == '"' {
		return readQuoted(runes, i)
	}
	start := i
	inQuotes := false
	for i < n {
		r := runes[i]
		if r == '\\' && i+1 < n {
			i += 2
			continue
		}
		if r == '"' {
			inQuotes = !inQuotes
			i++
			continue
		}
		if isSpace(r) && !inQuotes {
			break
		}
		i++
	}
	return string(runes[start:i]), i
}

// readQuoted reads a "..." run starting at position i (runes[i] == '"'),
// honoring \n \t \" \\ escapes, and returns the raw text including the
// surrounding quotes plus the index just past the closing quote. An
// unterminated quote reads to end of input.
func readQuoted(runes []rune, i int) (string, int) {
	n := len(runes)
	start := i
	i++ // skip opening quote
	for i < n {
		r := runes[i]
		if r == '\\' && i+1 < n {
			i += 2
			continue
		}
		if r == '"' {
			i++
			break
		}
		i++
	}
	return string(runes[start:i]), i
}

// unquote strips surrounding quotes (if present) and expands \n \t \" \\.
// Values not starting with '"' are returned unchanged (raw).
func unquote(raw string) string {
	if len(raw) < 2 || raw[0] != '"' {
		return raw
	}
	body := raw[1:]
	if len(body) > 0 && body[len(body)-1] == '"' {
		body = body[:len(body)-1]
	}
	var b strings.Builder
	rs := []rune(body)
	for i := 0; i < len(rs); i++ {
		if rs[i] == '\\' && i+1 < len(rs) {
			switch rs[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteRune(rs[i])
				b.WriteRune(rs[i+1])
			}
			i++
			continue
		}
		b.WriteRune(rs[i])
	}
	return b.String()
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r'
}

func extractRefsOn(s string) []vars.Ref { return vars.ExtractRefs(s) }
