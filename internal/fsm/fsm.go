package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateLive      State = "live"
	StateRecording State = "recording"
	StateAnalyzing State = "analyzing"
	StateError     State = "error"
)

const (
	EventStart    Event = "start"
	EventUpload   Event = "upload"
	EventAcquired Event = "acquired"
	EventRecord   Event = "record"
	EventStop     Event = "stop"
	EventFrame    Event = "frame"
	EventChunk    Event = "chunk"
	EventResult   Event = "result"
	EventFinish   Event = "finish"
	EventFail     Event = "fail"
	EventReset    Event = "reset"
	EventTeardown Event = "teardown"
)

// Transition applies one event to the current state. EventFail and
// EventTeardown are accepted from every state; EventTeardown from idle is the
// idempotent no-op form.
func Transition(current State, event Event) (State, error) {
	if event == EventFail {
		return StateError, nil
	}
	if event == EventTeardown {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventStart:
			return StateAcquiring, nil
		case EventUpload:
			// One-shot submission of an existing clip; no camera involved.
			return StateAnalyzing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAcquiring:
		switch event {
		case EventAcquired:
			return StateLive, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateLive:
		switch event {
		case EventRecord:
			return StateRecording, nil
		case EventFrame:
			return StateAnalyzing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventChunk:
			return StateRecording, nil
		case EventStop:
			return StateAnalyzing, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateAnalyzing:
		switch event {
		case EventResult:
			return StateLive, nil
		case EventFinish:
			// Result received with no live stream to return to.
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
