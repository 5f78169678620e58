package core

// CallStatus is the lifecycle value of one orchestrated call:
//
//	Idle → Processing → {Streaming | CallingTools} → Finished
//
// Non-streaming calls go directly Processing → Finished. Streaming calls
// enter Streaming on the first received delta. A call that receives tool
// call requests moves to CallingTools before looping back to Processing.
// Finished is terminal.
type CallStatus int32

const (
	// StatusIdle is the default pre-call state.
	StatusIdle CallStatus = iota
	// StatusProcessing means a model round is in flight.
	StatusProcessing
	// StatusStreaming means incremental deltas are being received.
	StatusStreaming
	// StatusCallingTools means tool invocations are executing.
	StatusCallingTools
	// StatusFinished is terminal; the Response must not mutate afterwards.
	StatusFinished
)

// String returns the string representation of the call status.
func (s CallStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusStreaming:
		return "streaming"
	case StatusCallingTools:
		return "calling_tools"
	case StatusFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status permits no further transitions.
func (s CallStatus) Terminal() bool { return s == StatusFinished }

// CanTransition reports whether moving from s to next follows the call
// lifecycle.
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case StatusIdle:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusStreaming || next == StatusCallingTools || next == StatusFinished
	case StatusStreaming:
		return next == StatusCallingTools || next == StatusProcessing || next == StatusFinished
	case StatusCallingTools:
		return next == StatusProcessing || next == StatusFinished
	default:
		return false
	}
}
