// parse.go — line classifier and top-level Parse entry point (§4.1).
// Parse is total: every input line yields exactly one classified output.
package macro

import (
	"strings"

	"github.com/brennhill/macrorun/internal/vars"
)

// Parse splits text into lines, classifies each, tokenizes command lines,
// and (when validate is true) runs per-command validation, accumulating
// diagnostics rather than failing.
func Parse(text string, validate bool) ParsedMacro {
	rawLines := splitLines(text)
	pm := ParsedMacro{
		Lines: make([]SourceLine, 0, len(rawLines)),
	}

	seenVar := make(map[string]bool)
	lineNo := 0
	for _, raw := range rawLines {
		lineNo++
		trimmed := strings.TrimSpace(raw)

		switch {
		case trimmed == "":
			pm.Lines = append(pm.Lines, SourceLine{Kind: LineEmpty, Raw: raw})

		case strings.HasPrefix(trimmed, "'"):
			comment := strings.TrimSpace(trimmed[1:])
			pm.Comments = append(pm.Comments, comment)
			pm.Lines = append(pm.Lines, SourceLine{Kind: LineComment, Raw: raw, Comment: comment})

		default:
			cmd := parseCommandLine(trimmed, lineNo)
			pm.Commands = append(pm.Commands, cmd)
			pm.Lines = append(pm.Lines, SourceLine{Kind: LineCommand, Raw: raw, Command: &pm.Commands[len(pm.Commands)-1]})
			for _, ref := range cmd.Variables {
				if !seenVar[ref.Name] {
					seenVar[ref.Name] = true
					pm.Variables = append(pm.Variables, ref)
				}
			}
			if validate {
				pm.Errors = append(pm.Errors, validateCommand(cmd)...)
			}
			if cmd.Type == CmdUnknown {
				pm.Errors = append(pm.Errors, ValidationError{
					LineNumber: lineNo,
					Message:    "unknown command: " + firstWord(trimmed),
				})
			}
		}
	}

	return pm
}

// splitLines splits on \r?\n, preserving a trailing empty line if the text
// ends with a newline.
func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(normalized, "\n")
}

func firstWord(s string) string {
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s
	}
	return s[:idx]
}

// parseCommandLine tokenizes one non-empty, non-comment line into a Command.
func parseCommandLine(trimmed string, lineNo int) Command {
	word := firstWord(trimmed)
	rest := strings.TrimSpace(trimmed[len(word):])

	typ, known := knownCommands[strings.ToUpper(word)]
	if !known {
		typ = CmdUnknown
	}

	params := tokenizeParams(rest)

	union := dedupRefs(params)

	return Command{
		Type:       typ,
		Raw:        trimmed,
		LineNumber: lineNo,
		Parameters: params,
		Variables:  union,
	}
}

// dedupRefs returns the union of every parameter's Variables, deduped by
// name, in first-seen order (§3 invariant: Command.Variables is the union
// of its parameters' Variables).
func dedupRefs(params []Parameter) []vars.Ref {
	seen := make(map[string]bool)
	var out []vars.Ref
	for _, p := range params {
		for _, r := range p.Variables {
			if seen[r.Name] {
				continue
			}
			seen[r.Name] = true
			out = append(out, r)
		}
	}
	return out
}

// ParseLine parses a single command line (no surrounding newline handling),
// used by callers that already isolated one line, and by the round-trip
// test in §8.
func ParseLine(line string, lineNo int) Command {
	trimmed := strings.TrimSpace(line)
	return parseCommandLine(trimmed, lineNo)
}
