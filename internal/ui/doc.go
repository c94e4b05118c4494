// Package ui renders terminal output for the wizlight CLI.
//
// Components are rendered once and printed; nothing here is interactive
// except ConfirmDangerousOperation, which reads a single line.
//
//   - Header: banner for long-running commands such as watch
//   - Result: success, failure and warning boxes with ordered details
//   - RenderPilot, RenderSystemConfig, RenderDevices: bulb-specific views
//   - RenderEvent: one line per state change in watch output
//
// Failure boxes take their troubleshooting tips from
// wiz.GetTroubleshootingHint, so every command reports errors the same way:
//
//	if err := b.TurnOn(ctx, params); err != nil {
//	    fmt.Println(ui.NewErrorResult("Turn on failed", err).Render())
//	}
//
// Colours come from lipgloss, which disables them when stdout is not a
// terminal. Logging stays silent unless WIZLIGHT_LOG_LEVEL or --log-level is
// set, so curated output is not interleaved with log lines.
package ui
