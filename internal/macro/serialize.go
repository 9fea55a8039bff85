// serialize.go — faithful reconstruction of macro source from an AST
// (§4.1, §8 round-trip invariant).
package macro

import "strings"

// SerializeCommand emits "TYPE key=rawValue ..." for a single command.
// Positional tokens are emitted as their raw token text alone, with no
// "=value" suffix.
func SerializeCommand(c Command) string {
	var b strings.Builder
	b.WriteString(string(c.Type))
	for _, p := range c.Parameters {
		b.WriteByte(' ')
		if p.Positional {
			b.WriteString(p.RawValue)
			continue
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.RawValue)
	}
	return b.String()
}

// SerializeMacro reconstructs the full script text from a ParsedMacro's
// lines, preserving comments and empty lines verbatim (§4.1).
func SerializeMacro(pm ParsedMacro) string {
	lines := make([]string, 0, len(pm.Lines))
	for _, l := range pm.Lines {
		switch l.Kind {
		case LineCommand:
			lines = append(lines, SerializeCommand(*l.Command))
		default:
			lines = append(lines, l.Raw)
		}
	}
	return strings.Join(lines, "\n")
}
