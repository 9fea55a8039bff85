// validate.go — per-command required-parameter validation (§4.1).
// Validation errors never abort parsing; they are appended to
// ParsedMacro.Errors with line numbers.
package macro

import "fmt"

// validateCommand returns zero or more diagnostics for one command. Unknown
// commands are reported by the caller (parse.go), not here.
func validateCommand(c Command) []ValidationError {
	var errs []ValidationError
	fail := func(msg string) {
		errs = append(errs, ValidationError{LineNumber: c.LineNumber, Message: msg})
	}
	has := func(key string) bool {
		_, ok := c.Param(key)
		return ok
	}

	switch c.Type {
	case CmdURL:
		if !has("GOTO") {
			fail("URL requires GOTO")
		}
	case CmdTag:
		if !has("XPATH") && !(has("POS") && has("TYPE")) {
			fail("TAG requires XPATH, or both POS and TYPE")
		}
	case CmdWait:
		if !has("SECONDS") {
			fail("WAIT requires SECONDS")
		}
	case CmdSet, CmdAdd:
		if len(c.Positionals()) < 2 {
			fail(fmt.Sprintf("%s requires at least two positional tokens", c.Type))
		}
	case CmdTab:
		if !has("T") && !hasAnyPositionalFlag(c, "CLOSE", "CLOSEALLOTHERS", "OPEN", "NEW") {
			fail("TAB requires T= or a bare action among CLOSE, CLOSEALLOTHERS, OPEN, NEW")
		}
	case CmdFrame:
		if !has("F") && !has("NAME") {
			fail("FRAME requires F or NAME")
		}
	case CmdSaveAs:
		if !has("TYPE") {
			fail("SAVEAS requires TYPE")
		}
	case CmdFilter:
		if !has("TYPE") {
			fail("FILTER requires TYPE")
		}
	case CmdScreenshot:
		if !has("TYPE") && !has("FILE") {
			fail("SCREENSHOT requires TYPE or FILE")
		}
	case CmdImageSearch:
		if !has("IMAGE") {
			fail("IMAGESEARCH requires IMAGE")
		}
	case CmdOnDialog:
		if !has("POS") || !has("BUTTON") {
			fail("ONDIALOG requires POS and BUTTON")
		}
	case CmdOnLogin:
		if !has("USER") || !has("PASSWORD") {
			fail("ONLOGIN requires USER and PASSWORD")
		}
	case CmdStopwatch:
		if !has("ID") && !has("LABEL") && !hasAnyPositionalFlag(c, "START", "STOP") {
			fail("STOPWATCH requires ID, LABEL, or a bare START/STOP flag")
		}
	}

	return errs
}

func hasAnyPositionalFlag(c Command, flags ...string) bool {
	for _, p := range c.Positionals() {
		for _, f := range flags {
			if equalFold(p.Key, f) {
				return true
			}
		}
	}
	return false
}
