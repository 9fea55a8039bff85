// commands.go — command handlers (§4.6), registered onto an
// engine.Dispatcher. One function per command family, each built against
// the narrow CommandContext surface (GetParam/RequireParam/Vars/Log) so the
// handler itself stays free of transport and state-locking detail — the
// same separation the teacher draws between its query dispatcher and the
// interact tool's pure helper functions.
package commands

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/brennhill/macrorun/internal/bridge"
	"github.com/brennhill/macrorun/internal/codes"
	"github.com/brennhill/macrorun/internal/crypto"
	"github.com/brennhill/macrorun/internal/engine"
	"github.com/brennhill/macrorun/internal/macro"
)

// RegisterAll installs every command handler on d.
func RegisterAll(d *engine.Dispatcher) {
	d.Register(macro.CmdVersion, handleVersion)
	d.Register(macro.CmdURL, handleURL)
	d.Register(macro.CmdNavigate, handleURL)
	d.Register(macro.CmdBack, handleBack)
	d.Register(macro.CmdRefresh, handleRefresh)
	d.Register(macro.CmdTab, handleTab)
	d.Register(macro.CmdFrame, handleFrame)
	d.Register(macro.CmdTag, handleTag)
	d.Register(macro.CmdClick, handleClick)
	d.Register(macro.CmdEvent, handleEvent)
	d.Register(macro.CmdEvents, handleEvents)
	d.Register(macro.CmdSet, handleSet)
	d.Register(macro.CmdAdd, handleAdd)
	d.Register(macro.CmdExtract, handleExtract)
	d.Register(macro.CmdSaveAs, handleSaveAs)
	d.Register(macro.CmdSaveItem, handleSaveItem)
	d.Register(macro.CmdPrompt, handlePrompt)
	d.Register(macro.CmdWait, handleWait)
	d.Register(macro.CmdPause, handlePause)
	d.Register(macro.CmdStopwatch, handleStopwatch)
	d.Register(macro.CmdOnDownload, handleOnDownload)
	d.Register(macro.CmdFileDelete, handleFileDelete)
	d.Register(macro.CmdOnDialog, handleOnDialog)
	d.Register(macro.CmdOnCertificateDialog, handleOnDialog)
	d.Register(macro.CmdOnErrorDialog, handleOnDialog)
	d.Register(macro.CmdOnSecurityDialog, handleOnDialog)
	d.Register(macro.CmdOnWebpageDialog, handleOnDialog)
	d.Register(macro.CmdOnPrint, handleOnDialog)
	d.Register(macro.CmdOnLogin, handleOnLogin)
	d.Register(macro.CmdScreenshot, handleScreenshot)
	d.Register(macro.CmdCmdline, handleCmdlineSet)
	d.Register(macro.CmdExec, handleExec)
	d.Register(macro.CmdDisconnect, handleDisconnect)
	d.Register(macro.CmdRedial, handleRedial)
	d.Register(macro.CmdDS, handleDS)
	d.Register(macro.CmdPrint, handlePrint)
	d.Register(macro.CmdClear, handleClear)
	d.Register(macro.CmdSize, handleSize)
	d.Register(macro.CmdProxy, handleProxy)
	d.Register(macro.CmdSearch, handleSearch)
	d.Register(macro.CmdFilter, handleFilter)
	d.Register(macro.CmdImageClick, handleUnsupportedImage)
	d.Register(macro.CmdImageSearch, handleUnsupportedImage)
	d.Register(macro.CmdWinClick, handleUnsupportedImage)
}

// ---- navigation ----

func handleURL(c *engine.CommandContext) error {
	target, err := c.RequireParam("GOTO")
	if err != nil {
		return err
	}
	if err := c.Deps.Browser.Navigate(c.Ctx, target); err != nil {
		return engine.NewCommandError(codes.FrameError, "navigate failed: "+err.Error())
	}
	c.State.Vars().SetSystemTrusted("!URLCURRENT", target)
	return nil
}

func handleBack(c *engine.CommandContext) error {
	if err := c.Deps.Browser.Back(c.Ctx); err != nil {
		return engine.NewCommandError(codes.FrameError, "back failed: "+err.Error())
	}
	return nil
}

func handleRefresh(c *engine.CommandContext) error {
	if err := c.Deps.Browser.Refresh(c.Ctx); err != nil {
		return engine.NewCommandError(codes.FrameError, "refresh failed: "+err.Error())
	}
	return nil
}

func handleTab(c *engine.CommandContext) error {
	target, _ := c.GetParam("T")
	action := "SELECT"
	for _, p := range c.Command.Positionals() {
		switch strings.ToUpper(p.Key) {
		case "CLOSE", "CLOSEALLOTHERS", "OPEN", "NEW":
			action = strings.ToUpper(p.Key)
		}
	}
	if err := c.Deps.Browser.SwitchTab(c.Ctx, action, target); err != nil {
		return engine.NewCommandError(codes.FrameError, "tab action failed: "+err.Error())
	}
	return nil
}

func handleFrame(c *engine.CommandContext) error {
	target, ok := c.GetParam("F")
	if !ok {
		target, _ = c.GetParam("NAME")
	}
	if err := c.Deps.Browser.SwitchFrame(c.Ctx, target); err != nil {
		return engine.NewCommandError(codes.FrameError, "frame switch failed: "+err.Error())
	}
	return nil
}

// ---- element interaction ----

func resolveSelector(c *engine.CommandContext) (string, bool) {
	if xpath, ok := c.GetParam("XPATH"); ok {
		return xpath, true
	}
	pos, hasPos := c.GetParam("POS")
	typ, hasType := c.GetParam("TYPE")
	if hasPos && hasType {
		return fmt.Sprintf("%s:%s", typ, pos), true
	}
	return "", false
}

func handleTag(c *engine.CommandContext) error {
	selector, ok := resolveSelector(c)
	if !ok {
		return engine.NewCommandError(codes.MissingParameter, "TAG requires XPATH or POS+TYPE")
	}
	el, err := c.Deps.Browser.FindElement(c.Ctx, selector)
	if err != nil {
		return engine.NewCommandError(codes.ElementNotFound, "element not found: "+selector)
	}
	if value, ok := c.GetParam("CONTENT"); ok {
		if strings.HasPrefix(value, "%") {
			value = strings.TrimPrefix(value, "%")
		}
		if err := c.Deps.Browser.SetValue(c.Ctx, el, value); err != nil {
			return engine.NewCommandError(codes.ScriptError, "set value failed: "+err.Error())
		}
	}
	if extractAttr, ok := c.GetParam("EXTRACT"); ok {
		val, err := c.Deps.Browser.Extract(c.Ctx, el, extractAttr)
		if err != nil {
			return engine.NewCommandError(codes.ScriptError, "extract failed: "+err.Error())
		}
		c.State.AddExtract(val)
	}
	return nil
}

func handleClick(c *engine.CommandContext) error {
	selector, ok := resolveSelector(c)
	if !ok {
		return engine.NewCommandError(codes.MissingParameter, "CLICK requires XPATH or POS+TYPE")
	}
	el, err := c.Deps.Browser.FindElement(c.Ctx, selector)
	if err != nil {
		return engine.NewCommandError(codes.ElementNotFound, "element not found: "+selector)
	}
	if err := c.Deps.Browser.Click(c.Ctx, el); err != nil {
		return engine.NewCommandError(codes.ScriptError, "click failed: "+err.Error())
	}
	return nil
}

func handleEvent(c *engine.CommandContext) error {
	selector, ok := resolveSelector(c)
	if !ok {
		return engine.NewCommandError(codes.MissingParameter, "EVENT requires XPATH or POS+TYPE")
	}
	eventType, err := c.RequireParam("EVENT")
	if err != nil {
		return err
	}
	el, err := c.Deps.Browser.FindElement(c.Ctx, selector)
	if err != nil {
		return engine.NewCommandError(codes.ElementNotFound, "element not found: "+selector)
	}
	params := map[string]string{}
	if sel, ok := c.GetParam("SELECTION"); ok {
		params["selection"] = sel
	}
	if err := c.Deps.Browser.FireEvent(c.Ctx, el, eventType, params); err != nil {
		return engine.NewCommandError(codes.ScriptError, "fire event failed: "+err.Error())
	}
	return nil
}

func handleEvents(c *engine.CommandContext) error {
	return handleEvent(c)
}

// ---- variables ----

func handleSet(c *engine.CommandContext) error {
	pos := c.Command.Positionals()
	if len(pos) < 2 {
		return engine.NewCommandError(codes.MissingParameter, "SET requires two positional tokens")
	}
	name := pos[0].Key
	value := c.State.Vars().Expand(pos[1].RawValue).Expanded
	res := c.State.Vars().Set(name, value)
	if !res.OK {
		return engine.NewCommandError(codes.InvalidParameter, "SET: unrecognized or reserved variable name "+name)
	}
	return nil
}

func handleAdd(c *engine.CommandContext) error {
	pos := c.Command.Positionals()
	if len(pos) < 2 {
		return engine.NewCommandError(codes.MissingParameter, "ADD requires two positional tokens")
	}
	name := pos[0].Key
	delta := c.State.Vars().Expand(pos[1].RawValue).Expanded

	current, _ := c.State.Vars().Get(name)
	cf, err1 := strconv.ParseFloat(strings.TrimSpace(current), 64)
	df, err2 := strconv.ParseFloat(strings.TrimSpace(delta), 64)
	if err1 != nil {
		cf = 0
	}
	if err2 != nil {
		return engine.NewCommandError(codes.InvalidParameter, "ADD requires a numeric second argument")
	}
	sum := cf + df
	formatted := strconv.FormatFloat(sum, 'f', -1, 64)
	res := c.State.Vars().Set(name, formatted)
	if !res.OK {
		return engine.NewCommandError(codes.InvalidParameter, "ADD: unrecognized or reserved variable name "+name)
	}
	return nil
}

func handleExtract(c *engine.CommandContext) error {
	value, err := c.RequireParam("CONTENT")
	if err != nil {
		value, err = c.RequireParam("TXT")
		if err != nil {
			return engine.NewCommandError(codes.MissingParameter, "EXTRACT requires CONTENT or TXT")
		}
	}
	c.State.AddExtract(value)
	return nil
}

// downloadDefaults resolves §4.6's ONDOWNLOAD/SAVEAS default-substitution:
// FOLDER defaults to "*" (the bridge's own default download directory) and
// FILE defaults to a !NOW-stamped name, each only when the macro left the
// parameter unspecified or blank.
func downloadDefaults(c *engine.CommandContext) (folder, file string) {
	folder, _ = c.GetParam("FOLDER")
	if folder == "" {
		folder = "*"
	}
	file, _ = c.GetParam("FILE")
	if file == "" {
		file = c.State.Vars().Expand("+_{{!NOW:yyyymmdd_hhnnss}}").Expanded
	}
	return folder, file
}

func handleSaveAs(c *engine.CommandContext) error {
	if _, err := c.RequireParam("TYPE"); err != nil {
		return err
	}
	folder, file := downloadDefaults(c)
	c.State.Vars().SetSystemTrusted("!FOLDER_SAVEAS", folder)
	lg := c.Log()
	lg.Info().Str("folder", folder).Str("file", file).Msg("saveas")
	return nil
}

func handleSaveItem(c *engine.CommandContext) error {
	return nil
}

// ---- flow control ----

// handlePrompt implements PROMPT's two syntaxes (§4.6, §8 Scenario 2): named
// (MESSAGE=/VAR=/DEFAULT=) and positional (message [varname [default]]).
// Named params, when present, take priority per field; any field left
// unnamed is filled from the next unconsumed positional token, so a line
// mixing a positional message with a named VAR= (as iMacros scripts commonly
// do) resolves the same as either pure form. With no variable named (neither
// VAR= nor a second positional token), PROMPT degrades to an alert: the
// message is shown for acknowledgment only and nothing is stored. Cancelling
// either an alert or a prompt returns success silently without storing,
// per §4.6 — it is not a run-stopping error.
func handlePrompt(c *engine.CommandContext) error {
	positionals := c.Command.Positionals()
	idx := 0
	nextPositional := func() (string, bool) {
		if idx >= len(positionals) {
			return "", false
		}
		v := c.State.Vars().Expand(positionals[idx].Key).Expanded
		idx++
		return v, true
	}

	message, hasMessage := c.GetParam("MESSAGE")
	if !hasMessage {
		if v, ok := nextPositional(); ok {
			message = v
		}
	}

	varName, hasVar := c.GetParam("VAR")
	if !hasVar {
		if v, ok := nextPositional(); ok && v != "" {
			varName = v
			hasVar = true
		}
	}

	def, hasDefault := c.GetParam("DEFAULT")
	if !hasDefault {
		if v, ok := nextPositional(); ok {
			def = v
		}
	}

	if c.Deps.FlowUI == nil {
		return engine.NewCommandError(codes.ScriptError, "PROMPT requires an attached flow-control UI")
	}

	if !hasVar {
		if err := c.Deps.FlowUI.Alert(c.Ctx, message, ""); err != nil {
			return nil
		}
		return nil
	}

	answer, err := c.Deps.FlowUI.Prompt(c.Ctx, message, def)
	if err != nil {
		return nil
	}
	c.State.Vars().Set(varName, answer)
	return nil
}

func handleWait(c *engine.CommandContext) error {
	raw, err := c.RequireParam("SECONDS")
	if err != nil {
		return err
	}
	seconds, convErr := strconv.ParseFloat(raw, 64)
	if convErr != nil || seconds < 0 {
		return engine.NewCommandError(codes.InvalidParameter, "WAIT requires a non-negative SECONDS value")
	}
	if stepRaw, ok := c.State.Vars().Get("!TIMEOUT_STEP"); ok {
		if stepSeconds, convErr := strconv.ParseFloat(stepRaw, 64); convErr == nil && stepSeconds >= 0 && stepSeconds < seconds {
			lg := c.Log()
			lg.Warn().Float64("requested_seconds", seconds).Float64("timeout_step", stepSeconds).
				Msg("WAIT capped by !TIMEOUT_STEP")
			seconds = stepSeconds
		}
	}
	rawMs := seconds * 1000
	quantizedMs := quantizeWaitMs(rawMs)
	return pauseAwareSleep(c, quantizedMs)
}

// pauseAwareSleep sleeps totalMs in <=100ms chunks, checking the run's
// status between each chunk (§4.5): while paused, it sleeps a further 50ms
// and re-checks instead of counting that time toward the wait, resuming the
// countdown once status leaves paused. Cancellation aborts immediately.
func pauseAwareSleep(c *engine.CommandContext, totalMs int) error {
	const chunk = 100 * time.Millisecond
	remaining := time.Duration(totalMs) * time.Millisecond
	for remaining > 0 {
		if c.Ctx.Err() != nil {
			return engine.NewCommandError(codes.UserAbort, "wait cancelled")
		}
		if c.State.IsPaused() {
			select {
			case <-c.Ctx.Done():
				return engine.NewCommandError(codes.UserAbort, "wait cancelled")
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		step := chunk
		if remaining < step {
			step = remaining
		}
		select {
		case <-c.Ctx.Done():
			return engine.NewCommandError(codes.UserAbort, "wait cancelled")
		case <-time.After(step):
		}
		remaining -= step
	}
	return nil
}

// quantizeWaitMs rounds a raw millisecond duration to the nearest 100ms,
// floored at 10ms (§4.5: "max(10, round(rawMs/100)*100)").
func quantizeWaitMs(rawMs float64) int {
	rounded := int(rawMs/100+0.5) * 100
	if rounded < 10 {
		rounded = 10
	}
	return rounded
}

func handlePause(c *engine.CommandContext) error {
	if c.Deps.FlowUI == nil {
		c.State.Pause()
		return nil
	}
	c.State.Pause()
	resume, err := c.Deps.FlowUI.Pause(c.Ctx, "PAUSE command")
	if err != nil || !resume {
		return engine.NewCommandError(codes.UserAbort, "pause not resumed")
	}
	c.State.Resume()
	return nil
}

// ---- stopwatch ----

func handleStopwatch(c *engine.CommandContext) error {
	id, hasID := c.GetParam("ID")
	label, hasLabel := c.GetParam("LABEL")
	if !hasID && hasLabel {
		id = label
	}
	if id == "" {
		id = "DEFAULT"
	}
	sw := c.State.Stopwatches()

	action, hasAction := c.GetParam("ACTION")
	action = strings.ToUpper(action)
	switch {
	case hasAction:
		// explicit ACTION= wins.
	case hasPositional(c.Command, "START"):
		action = "START"
	case hasPositional(c.Command, "STOP"):
		action = "STOP"
	case hasID && !hasLabel:
		// No-action syntax toggles based on running state (§4.6).
		if sw.IsRunning(id) {
			action = "STOP"
		} else {
			action = "START"
		}
	default:
		action = "LAP"
	}

	switch action {
	case "START":
		if !sw.Start(id) {
			return engine.NewCommandError(codes.StopwatchAlreadyStarted, "stopwatch already running: "+id)
		}
	case "STOP":
		elapsed, ok := sw.Stop(id)
		if !ok {
			return engine.NewCommandError(codes.StopwatchNotStarted, "stopwatch not running: "+id)
		}
		recordStopwatchElapsed(c, id, elapsed)
	case "LAP":
		elapsed, ok := sw.Lap(id)
		if !ok {
			return engine.NewCommandError(codes.StopwatchNotStarted, "stopwatch not running: "+id)
		}
		recordStopwatchElapsed(c, id, elapsed)
	case "READ":
		elapsed, ok := sw.Read(id)
		if !ok {
			return engine.NewCommandError(codes.StopwatchNotStarted, "stopwatch not running: "+id)
		}
		c.State.Vars().SetSystemTrusted("!STOPWATCHTIME", fmt.Sprintf("%.3f", elapsed))
	default:
		return engine.NewCommandError(codes.InvalidParameter, "STOPWATCH: unknown ACTION "+action)
	}
	return nil
}

// recordStopwatchElapsed stores the elapsed time of a stop/lap into
// !STOPWATCHTIME (seconds, 3dp) and !STOPWATCH_<ID> (whole milliseconds),
// per §4.6: "On stop/lap/label, emit elapsed seconds... into !STOPWATCHTIME".
func recordStopwatchElapsed(c *engine.CommandContext, id string, elapsedSec float64) {
	c.State.Vars().SetSystemTrusted("!STOPWATCHTIME", fmt.Sprintf("%.3f", elapsedSec))
	c.State.Vars().SetSystemTrusted("!STOPWATCH_"+strings.ToUpper(id), strconv.FormatInt(int64(elapsedSec*1000), 10))
}

func hasPositional(c macro.Command, flag string) bool {
	for _, p := range c.Positionals() {
		if strings.EqualFold(p.Key, flag) {
			return true
		}
	}
	return false
}

// ---- downloads / files ----

func handleOnDownload(c *engine.CommandContext) error {
	folder, file := downloadDefaults(c)
	waitParam, _ := c.GetParam("WAIT")
	c.State.Vars().SetSystemTrusted("!FOLDER_DOWNLOAD", folder)
	lg := c.Log()
	lg.Info().Str("folder", folder).Str("file", file).Str("wait", waitParam).Msg("ondownload armed")
	return nil
}

func handleFileDelete(c *engine.CommandContext) error {
	target, err := c.RequireParam("FILE")
	if err != nil {
		return err
	}
	lg := c.Log()
	lg.Info().Str("file", target).Msg("filedelete")
	return nil
}

func handleScreenshot(c *engine.CommandContext) error {
	var el *bridge.ElementHandle
	if xpath, ok := c.GetParam("XPATH"); ok {
		found, err := c.Deps.Browser.FindElement(c.Ctx, xpath)
		if err != nil {
			return engine.NewCommandError(codes.ElementNotFound, "element not found: "+xpath)
		}
		el = &found
	}
	png, err := c.Deps.Browser.Screenshot(c.Ctx, el)
	if err != nil {
		return engine.NewCommandError(codes.DownloadError, "screenshot failed: "+err.Error())
	}
	lg := c.Log()
	lg.Info().Int("bytes", len(png)).Msg("screenshot captured")
	return nil
}

// ---- dialogs ----

// dialogButtonVar maps each ON*DIALOG/ONPRINT command type to the
// !*_BUTTON system variable §4.6 stores its coerced BUTTON value under.
var dialogButtonVar = map[macro.CommandType]string{
	macro.CmdOnDialog:            "!DIALOG_BUTTON",
	macro.CmdOnCertificateDialog: "!CERTIFICATEDIALOG_BUTTON",
	macro.CmdOnErrorDialog:       "!ERRORDIALOG_BUTTON",
	macro.CmdOnSecurityDialog:    "!SECURITYDIALOG_BUTTON",
	macro.CmdOnWebpageDialog:     "!WEBPAGEDIALOG_BUTTON",
	macro.CmdOnPrint:             "!PRINT_BUTTON",
}

// coerceButton maps a raw BUTTON= value onto the closed {OK, YES, CANCEL,
// NO} set §4.6 requires; anything else, including an absent value, coerces
// to CANCEL.
func coerceButton(raw string) string {
	switch u := strings.ToUpper(strings.TrimSpace(raw)); u {
	case "OK", "YES", "CANCEL", "NO":
		return u
	default:
		return "CANCEL"
	}
}

// handleOnDialog implements the shared ONDIALOG/ONCERTIFICATEDIALOG/
// ONERRORDIALOG/ONSECURITYDIALOG/ONWEBPAGEDIALOG/ONPRINT contract (§4.6):
// coerce BUTTON onto {OK, YES, CANCEL, NO}, record it under the command's
// own !*_BUTTON variable plus the shared !DIALOG_CONTENT, arm the dialog
// bridge's accept/reject policy, and send a typed *_CONFIG message.
// ONERRORDIALOG additionally treats CONTINUE={NO|FALSE|no} as a request to
// stop the run on the next dialog-triggered error, recorded in
// !STOPONERROR since the propagation policy (§7) is driven by variables.
func handleOnDialog(c *engine.CommandContext) error {
	rawButton, _ := c.GetParam("BUTTON")
	button := coerceButton(rawButton)
	content, _ := c.GetParam("CONTENT")
	pos, _ := c.GetParam("POS")

	if buttonVar, ok := dialogButtonVar[c.Command.Type]; ok {
		c.State.Vars().SetSystemTrusted(buttonVar, button)
	}
	c.State.Vars().SetSystemTrusted("!DIALOG_CONTENT", content)

	if c.Command.Type == macro.CmdOnErrorDialog {
		stop := "NO"
		if cont, ok := c.GetParam("CONTINUE"); ok {
			switch strings.ToUpper(strings.TrimSpace(cont)) {
			case "NO", "FALSE":
				stop = "YES"
			}
		}
		c.State.Vars().SetSystemTrusted("!STOPONERROR", stop)
	}

	if c.Deps.Dialogs == nil {
		return engine.NewCommandError(codes.ScriptError, "no dialog bridge attached")
	}

	accept := button == "OK" || button == "YES"
	c.Deps.Dialogs.SetPolicy(func(bridge.DialogEvent) bridge.DialogResponse {
		return bridge.DialogResponse{Accept: accept, Text: content}
	})

	var timeout time.Duration
	if raw, ok := c.GetParam("TIMEOUT"); ok {
		if secs, convErr := strconv.ParseFloat(raw, 64); convErr == nil && secs > 0 {
			timeout = time.Duration(secs * float64(time.Second))
		}
	}
	msg := bridge.DialogConfigMessage{
		Type:      string(c.Command.Type) + "_CONFIG",
		ID:        c.CorrelationID,
		Timestamp: time.Now(),
		Payload: bridge.DialogConfigPayload{
			Append:      true,
			DialogTypes: []string{string(c.Command.Type)},
			Config: bridge.DialogConfig{
				Pos:     pos,
				Button:  button,
				Content: content,
				Timeout: timeout,
				Active:  true,
			},
		},
	}
	if _, sendErr := c.Deps.Dialogs.SendMessage(c.Ctx, msg); sendErr != nil {
		return engine.NewCommandError(codes.ScriptError, "dialog config message failed: "+sendErr.Error())
	}
	return nil
}

// handleOnLogin implements ONLOGIN (§4.6): validate USER/PASSWORD, decrypt
// PASSWORD per !ENCRYPTION when it looks encrypted, then send a LOGIN_CONFIG
// bridge message carrying the resolved user/password/active=true and an
// optional TIMEOUT.
func handleOnLogin(c *engine.CommandContext) error {
	user, err := c.RequireParam("USER")
	if err != nil {
		return err
	}
	password, err := c.RequireParam("PASSWORD")
	if err != nil {
		return err
	}
	mode, _ := c.Vars().Get("!ENCRYPTION")
	if mode != "" && mode != string(crypto.ModeNone) && crypto.LooksEncrypted(password) {
		masterKey, _ := c.GetParam("KEY")
		plain, decErr := crypto.DecryptString(password, masterKey)
		if decErr != nil {
			if encErr, ok := decErr.(*crypto.EncryptionError); ok {
				return engine.NewCommandError(encErr.Code, encErr.Error())
			}
			return decErr
		}
		password = plain
	}

	if c.Deps.Dialogs == nil {
		return engine.NewCommandError(codes.ScriptError, "no dialog bridge attached")
	}

	var timeout time.Duration
	if raw, ok := c.GetParam("TIMEOUT"); ok {
		if secs, convErr := strconv.ParseFloat(raw, 64); convErr == nil && secs > 0 {
			timeout = time.Duration(secs * float64(time.Second))
		}
	}

	msg := bridge.DialogConfigMessage{
		Type:      "LOGIN_CONFIG",
		ID:        c.CorrelationID,
		Timestamp: time.Now(),
		Payload: bridge.DialogConfigPayload{
			Append:      true,
			DialogTypes: []string{string(macro.CmdOnLogin)},
			Config: bridge.DialogConfig{
				User:     user,
				Password: password,
				Timeout:  timeout,
				Active:   true,
			},
		},
	}
	if _, sendErr := c.Deps.Dialogs.SendMessage(c.Ctx, msg); sendErr != nil {
		return engine.NewCommandError(codes.ScriptError, "login config message failed: "+sendErr.Error())
	}
	return nil
}

// ---- process / network ----

// handleExec implements the EXEC command (§4.6): expand CMD, resolve
// WAIT/TIMEOUT, delegate to the cmdline-executor bridge, and surface the
// process outcome through !CMDLINE_EXITCODE/!CMDLINE_STDOUT/!CMDLINE_STDERR.
func handleExec(c *engine.CommandContext) error {
	cmdStr, err := c.RequireParam("CMD")
	if err != nil {
		return err
	}
	if c.Deps.Cmdline == nil {
		return engine.NewCommandError(codes.ScriptError, "no command executor attached")
	}

	timeout := 30 * time.Second
	if raw, ok := c.GetParam("TIMEOUT"); ok {
		if secs, convErr := strconv.ParseFloat(raw, 64); convErr == nil {
			ms := secs * 1000
			if ms < 1000 {
				ms = 1000
			}
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	result, runErr := c.Deps.Cmdline.Run(c.Ctx, cmdStr, nil, timeout)
	if runErr != nil {
		c.State.Vars().SetSystemTrusted("!CMDLINE_EXITCODE", "-1")
		c.State.Vars().SetSystemTrusted("!CMDLINE_STDOUT", "")
		c.State.Vars().SetSystemTrusted("!CMDLINE_STDERR", runErr.Error())
		return engine.NewCommandError(codes.ScriptError, "exec failed: "+runErr.Error())
	}
	c.State.Vars().SetSystemTrusted("!CMDLINE_EXITCODE", strconv.Itoa(result.ExitCode))
	c.State.Vars().SetSystemTrusted("!CMDLINE_STDOUT", result.Stdout)
	c.State.Vars().SetSystemTrusted("!CMDLINE_STDERR", result.Stderr)
	if result.ExitCode != 0 {
		return engine.NewCommandError(codes.ScriptError, fmt.Sprintf("exec exited %d: %s", result.ExitCode, result.Stderr))
	}
	return nil
}

// cmdlineWhitelist is the closed set of system variables the legacy CMDLINE
// variable-setting form (§4.6) may write.
var cmdlineWhitelist = buildCmdlineWhitelist()

func buildCmdlineWhitelist() map[string]bool {
	m := map[string]bool{"!TIMEOUT": true, "!LOOP": true, "!DATASOURCE": true}
	for i := 0; i <= 9; i++ {
		m[fmt.Sprintf("!VAR%d", i)] = true
	}
	return m
}

// handleCmdlineSet implements the legacy CMDLINE variable-setting form
// (§4.6): positional <var> <value>. System names must be in the whitelist;
// user variable names must already exist.
func handleCmdlineSet(c *engine.CommandContext) error {
	pos := c.Command.Positionals()
	if len(pos) < 2 {
		return engine.NewCommandError(codes.MissingParameter, "CMDLINE requires <var> <value>")
	}
	name := pos[0].Key
	value := c.State.Vars().Expand(pos[1].RawValue).Expanded
	upperName := strings.ToUpper(name)

	if strings.HasPrefix(upperName, "!") {
		if !cmdlineWhitelist[upperName] {
			return engine.NewCommandError(codes.InvalidParameter, "CMDLINE: system variable not settable: "+name)
		}
		c.State.Vars().Set(name, value)
		return nil
	}
	if _, exists := c.State.Vars().Get(name); !exists {
		return engine.NewCommandError(codes.InvalidParameter, "Unknown variable: "+name)
	}
	c.State.Vars().Set(name, value)
	return nil
}

func handleDisconnect(c *engine.CommandContext) error {
	if c.Deps.Network == nil {
		return engine.NewCommandError(codes.ScriptError, "no network manager attached")
	}
	if err := c.Deps.Network.Disconnect(c.Ctx); err != nil {
		return engine.NewCommandError(codes.ScriptError, "disconnect failed: "+err.Error())
	}
	return nil
}

func handleRedial(c *engine.CommandContext) error {
	if c.Deps.Network == nil {
		return engine.NewCommandError(codes.ScriptError, "no network manager attached")
	}
	if err := c.Deps.Network.Redial(c.Ctx, bridge.BlockingPoll); err != nil {
		return engine.NewCommandError(codes.ScriptError, "redial failed: "+err.Error())
	}
	return nil
}

// ---- misc no-ops with real effect on state ----

// engineVersion is this engine's own version, compared component-wise
// against a macro's BUILD= requirement (§4.6).
const engineVersion = "11.5.0"

// handleVersion implements VERSION (§4.6): compares BUILD=x.y.z against
// engineVersion component-wise, padding missing components with 0, and
// stores !VERSION/!VERSION_BUILD/!PLATFORM. A BUILD that looks like a bare
// old-style integer build number (no dots) is ignored rather than compared,
// per §4.6 ("skip old integer-style build numbers").
func handleVersion(c *engine.CommandContext) error {
	c.State.Vars().SetSystemTrusted("!VERSION", engineVersion)
	c.State.Vars().SetSystemTrusted("!PLATFORM", runtime.GOOS+"-"+runtime.GOARCH)

	build, ok := c.GetParam("BUILD")
	if !ok {
		return nil
	}
	if !strings.Contains(build, ".") {
		// Old integer-style build number; nothing to compare against.
		return nil
	}
	cmp := compareVersions(engineVersion, build)
	c.State.Vars().SetSystemTrusted("!VERSION_BUILD", build)
	if cmp < 0 {
		return engine.NewCommandError(codes.ScriptError,
			fmt.Sprintf("VERSION: engine version %s is older than required BUILD=%s", engineVersion, build))
	}
	return nil
}

// compareVersions compares two dotted version strings component-wise,
// treating a missing trailing component as 0. Returns <0, 0, or >0.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(strings.TrimSpace(as[i]))
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(strings.TrimSpace(bs[i]))
		}
		if av != bv {
			return av - bv
		}
	}
	return 0
}

func handlePrint(c *engine.CommandContext) error { return nil }

func handleClear(c *engine.CommandContext) error {
	c.State.ClearExtract()
	return nil
}

func handleSize(c *engine.CommandContext) error { return nil }

func handleProxy(c *engine.CommandContext) error { return nil }

func handleSearch(c *engine.CommandContext) error { return nil }

func handleFilter(c *engine.CommandContext) error {
	if _, err := c.RequireParam("TYPE"); err != nil {
		return err
	}
	return nil
}

func handleUnsupportedImage(c *engine.CommandContext) error {
	return engine.NewCommandError(codes.ScriptError, string(c.Command.Type)+" is not supported by this bridge")
}
