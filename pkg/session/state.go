package session

import (
	"errors"
	"fmt"

	"github.com/looplab/fsm"
)

type State string

const (
	StateIdle           State = "idle"
	StateTakingPhoto    State = "taking_photo"
	StateRecordingVideo State = "recording_video"
)

const (
	evTakePhoto      = "take_photo"
	evPhotoDone      = "photo_done"
	evStartRecording = "start_recording"
	evStopRecording  = "stop_recording"
	evReset          = "reset"
)

func newStateMachine(onEnter func(from, to State)) *fsm.FSM {
	return fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: evTakePhoto, Src: []string{string(StateIdle)}, Dst: string(StateTakingPhoto)},
			{Name: evPhotoDone, Src: []string{string(StateTakingPhoto)}, Dst: string(StateIdle)},
			{Name: evStartRecording, Src: []string{string(StateIdle)}, Dst: string(StateRecordingVideo)},
			{Name: evStopRecording, Src: []string{string(StateRecordingVideo)}, Dst: string(StateIdle)},
			{Name: evReset, Src: []string{string(StateTakingPhoto), string(StateRecordingVideo)}, Dst: string(StateIdle)},
		},
		fsm.Callbacks{
			// only queue the notification here, the fsm is not reentrant
			"enter_state": func(e *fsm.Event) {
				onEnter(State(e.Src), State(e.Dst))
			},
		},
	)
}

// State is readable without the coordination lock.
func (c *Controller) State() State {
	return State(c.fsm.Current())
}

// fire performs a transition. Callers check preconditions first, so an
// illegal transition is a broken invariant.
func (c *Controller) fire(event string) {
	err := c.fsm.Event(event)
	if err == nil {
		return
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return
	}
	panic(fmt.Sprintf("session: %s in state %s: %s", event, c.fsm.Current(), err))
}

func (c *Controller) onEnterState(from, to State) {
	logger.Infof("state %s -> %s", from, to)
	post(c, &c.listeners.state, StateChange{From: from, To: to})
}
