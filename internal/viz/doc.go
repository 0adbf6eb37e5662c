// Package viz renders a running session as a live terminal trend.
//
// The view polls the session snapshot on every scan period and plots the
// PV, SP and CV series with asciigraph inside a Bubble Tea program.
//
// # Key Bindings
//
//	Space - Freeze/unfreeze the display
//	T     - Cycle color themes
//	+/-   - Widen or narrow the visible window
//	?     - Show help overlay
//	Q     - Quit
package viz
