package stream

import "time"

// State is the lifecycle phase of a [Streamer].
type State int32

const (
	// StateIdle means no stream is running.
	StateIdle State = iota

	// StateGatedWait means a stream is connected and waiting for its gate.
	StateGatedWait

	// StateStreaming means frames are being paced onto the transport.
	StateStreaming

	// StateStopped means the last stream ended, normally or not.
	StateStopped
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGatedWait:
		return "gated-wait"
	case StateStreaming:
		return "streaming"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TickDecision is what the streamer did with one frame slot.
type TickDecision int

const (
	// TickWait means the frame was early; the streamer slept until its slot
	// and then sent it.
	TickWait TickDecision = iota

	// TickSendNow means the frame was on time or less than one tick late and
	// was sent immediately.
	TickSendNow

	// TickSkip means the frame was more than one tick late and was dropped.
	TickSkip
)

// String returns the human-readable name of the decision.
func (d TickDecision) String() string {
	switch d {
	case TickWait:
		return "wait"
	case TickSendNow:
		return "send-now"
	case TickSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Tick describes one frame slot as observed by the tick hook.
type Tick struct {
	// Index is the frame index within the sequence.
	Index int

	// Decision is the pacing outcome for the slot.
	Decision TickDecision

	// Lateness is elapsed minus scheduled time when the slot was evaluated.
	// Negative values mean the frame was early.
	Lateness time.Duration

	// Empty is set for degraded frames that had no wire data and were not
	// sent.
	Empty bool
}

// Stats summarises one call to [Streamer.Stream].
type Stats struct {
	// Frames is the number of frame slots processed.
	Frames int

	// Sent counts frames written to the transport.
	Sent int

	// Skipped counts frames dropped for lateness.
	Skipped int

	// Empty counts frame slots that had no wire data.
	Empty int

	// Elapsed is the time from the gate opening to the end of the stream.
	Elapsed time.Duration

	// Cancelled is set when the stream stopped because its context was done.
	Cancelled bool
}
