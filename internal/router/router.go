// Package router assigns accepted connections to the primary or one of its
// mirrors by connection ordinal.
package router

import "w24fs/internal/types"

// blockSize is how many consecutive connections each node takes during warm-up.
const blockSize = 3

// Route maps a 1-based connection ordinal to the node that serves it.
//
// Ordinals 1-3 stay local, 4-6 go to Mirror1 and 7-9 to Mirror2. From 10 on
// the assignment cycles Local, Mirror1, Mirror2 one connection at a time.
// Ordinal 0 is treated as 1.
func Route(ordinal uint64) types.RouteDecision {
	switch {
	case ordinal <= blockSize:
		return types.RouteLocal
	case ordinal <= 2*blockSize:
		return types.RouteMirror1
	case ordinal <= 3*blockSize:
		return types.RouteMirror2
	}
	switch ((ordinal - 3*blockSize - 1) % 3) + 1 {
	case 1:
		return types.RouteLocal
	case 2:
		return types.RouteMirror1
	default:
		return types.RouteMirror2
	}
}
