package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"w24fs/internal/types"
)

func TestRouteWarmupBlocks(t *testing.T) {
	tests := []struct {
		ordinal uint64
		want    types.RouteDecision
	}{
		{1, types.RouteLocal},
		{2, types.RouteLocal},
		{3, types.RouteLocal},
		{4, types.RouteMirror1},
		{5, types.RouteMirror1},
		{6, types.RouteMirror1},
		{7, types.RouteMirror2},
		{8, types.RouteMirror2},
		{9, types.RouteMirror2},
		{10, types.RouteLocal},
		{11, types.RouteMirror1},
		{12, types.RouteMirror2},
		{13, types.RouteLocal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Route(tt.ordinal), "ordinal %d", tt.ordinal)
	}
}

func TestRouteCyclesWithPeriodThree(t *testing.T) {
	for n := uint64(10); n < 1000; n++ {
		assert.Equal(t, Route(n), Route(n+3), "ordinal %d", n)
	}
}

func TestRouteDeterministic(t *testing.T) {
	for n := uint64(1); n < 50; n++ {
		first := Route(n)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, Route(n))
		}
	}
}

func TestRouteZeroIsLocal(t *testing.T) {
	assert.Equal(t, types.RouteLocal, Route(0))
}
