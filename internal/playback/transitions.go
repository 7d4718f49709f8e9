package playback

// trigger is an input to the session state machine.
type trigger string

const (
	evStart          trigger = "start"
	evSettledTrusted trigger = "settled_trusted"
	evDrift          trigger = "drift"
	evReload         trigger = "reload"
	evRetry          trigger = "retry"
	evClose          trigger = "close"
	evExhausted      trigger = "exhausted"
)

type transition struct {
	From  State
	Event trigger
	To    State
}

var transitionsTable = []transition{
	{From: StateIdle, Event: evStart, To: StateLoading},
	{From: StateLoading, Event: evSettledTrusted, To: StatePlaying},

	// A hostile page may redirect before the player ever settles, so drift
	// is honoured while loading as well as while playing.
	{From: StateLoading, Event: evDrift, To: StateRecovering},
	{From: StatePlaying, Event: evDrift, To: StateRecovering},
	{From: StateRecovering, Event: evReload, To: StateLoading},

	// Retry after a transient load failure.
	{From: StateLoading, Event: evRetry, To: StateLoading},
	{From: StatePlaying, Event: evRetry, To: StateLoading},

	{From: StateLoading, Event: evExhausted, To: StateClosed},
	{From: StatePlaying, Event: evExhausted, To: StateClosed},
	{From: StateRecovering, Event: evExhausted, To: StateClosed},

	{From: StateIdle, Event: evClose, To: StateClosed},
	{From: StateLoading, Event: evClose, To: StateClosed},
	{From: StatePlaying, Event: evClose, To: StateClosed},
	{From: StateRecovering, Event: evClose, To: StateClosed},
}

// nextState returns the target state for ev in from, if the edge exists.
func nextState(from State, ev trigger) (State, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr.To, true
		}
	}
	return from, false
}
