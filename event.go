package tekdaq

import "time"

// ChannelData is one channel's decoded trace within an event.
type ChannelData struct {
	Channel int
	Raw     []uint16
	Volts   []float64
	Summary WaveformSummary
}

// Event is one triggered capture: the decoded trace of every recorded
// channel, sharing one time axis. Sample i of any trace sits at time
// XZero + i*XIncr relative to the trigger.
type Event struct {
	Index    int
	Time     time.Time
	XZero    float64
	XIncr    float64
	Channels []ChannelData
}

// VoltTraces returns the voltage traces in channel order.
func (e *Event) VoltTraces() [][]float64 {
	traces := make([][]float64, len(e.Channels))
	for i := range e.Channels {
		traces[i] = e.Channels[i].Volts
	}
	return traces
}

// NumSamples returns the per-channel record length of the event.
func (e *Event) NumSamples() int {
	if len(e.Channels) == 0 {
		return 0
	}
	return len(e.Channels[0].Volts)
}
