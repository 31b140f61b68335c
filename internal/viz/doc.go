// Package viz renders a running track in the terminal.
//
// [Model] is a Bubble Tea model that drives a [sim.Stepper] frame by frame
// and draws truth, measurements and the filter estimate on a Braille
// [Canvas], with NIS and r history beside it.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	M     - Toggle baseline/adaptive mid-run
//	R     - Restart the run from step 0
//	T     - Cycle color themes
//	+/-   - More/fewer steps per frame
//	Q     - Quit
package viz
