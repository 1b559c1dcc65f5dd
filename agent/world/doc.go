// Package world provides the discrete grid the navigator agent moves in.
//
// The world package implements:
//   - Continuous positions bounded to a square of half-extent B
//   - The four unit actions and their facing directions
//   - Boundary clamping and the boundary-aware action filter
//   - The forward-cone obstacle proximity query used for collision rejection
//   - The state codec that coarsens a position to its "x,z" lattice key
//
// Core Types:
//
// GridWorld holds the immutable geometry (extent, step size, clearance and the
// obstacle set). Position is a point in the x/z plane, Action one of the four
// moves and State the rounded key used for all learning bookkeeping.
//
// Usage:
//
//	w := world.New(world.Options{Extent: 7, StepSize: 1, Clearance: 0.5}, obstacles)
//
//	pos := world.Position{X: 7, Z: -7}
//	for _, a := range w.AllowedActions(pos) {
//		next, facing := w.Move(pos, a)
//		if w.Blocked(next, facing) {
//			continue
//		}
//		fmt.Println(a, world.Encode(next))
//	}
//
// A GridWorld is read-only after construction and safe to share.
package world
