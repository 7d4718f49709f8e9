package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	allStates   = []State{StateIdle, StateLoading, StatePlaying, StateRecovering, StateClosed}
	allTriggers = []trigger{evStart, evSettledTrusted, evDrift, evReload, evRetry, evClose, evExhausted}
)

func TestTransitionsTable_noDuplicateEdges(t *testing.T) {
	seen := make(map[State]map[trigger]bool)
	for _, tr := range transitionsTable {
		if seen[tr.From] == nil {
			seen[tr.From] = make(map[trigger]bool)
		}
		require.False(t, seen[tr.From][tr.Event], "duplicate edge %s --%s-->", tr.From, tr.Event)
		seen[tr.From][tr.Event] = true
	}
}

func TestTransitionsTable_closedIsTerminal(t *testing.T) {
	for _, ev := range allTriggers {
		_, ok := nextState(StateClosed, ev)
		assert.False(t, ok, "closed must not accept %s", ev)
	}
}

func TestTransitionsTable_everyStateCanClose(t *testing.T) {
	for _, st := range allStates {
		if st == StateClosed {
			continue
		}
		to, ok := nextState(st, evClose)
		require.True(t, ok, "%s cannot close", st)
		assert.Equal(t, StateClosed, to)
	}
}

func TestTransitionsTable_everyStateReachable(t *testing.T) {
	reached := map[State]bool{StateIdle: true}
	for changed := true; changed; {
		changed = false
		for _, tr := range transitionsTable {
			if reached[tr.From] && !reached[tr.To] {
				reached[tr.To] = true
				changed = true
			}
		}
	}
	for _, st := range allStates {
		assert.True(t, reached[st], "%s unreachable from idle", st)
	}
}

func TestNextState(t *testing.T) {
	cases := []struct {
		from State
		ev   trigger
		to   State
		ok   bool
	}{
		{StateIdle, evStart, StateLoading, true},
		{StateLoading, evSettledTrusted, StatePlaying, true},
		{StatePlaying, evDrift, StateRecovering, true},
		{StateRecovering, evReload, StateLoading, true},
		{StateRecovering, evDrift, StateRecovering, false},
		{StateRecovering, evRetry, StateRecovering, false},
		{StateIdle, evDrift, StateIdle, false},
		{StatePlaying, evStart, StatePlaying, false},
	}
	for _, tc := range cases {
		to, ok := nextState(tc.from, tc.ev)
		assert.Equal(t, tc.ok, ok, "%s --%s-->", tc.from, tc.ev)
		assert.Equal(t, tc.to, to, "%s --%s-->", tc.from, tc.ev)
	}
}
