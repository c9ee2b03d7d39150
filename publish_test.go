package tekdaq

import (
	"bytes"
	"testing"
	"time"
)

func TestRawBytesLittleEndian(t *testing.T) {
	got := rawBytes([]uint16{0x1234, 0xABCD})
	want := []byte{0x34, 0x12, 0xCD, 0xAB}
	if !bytes.Equal(got, want) {
		t.Errorf("rawBytes=%x, want %x", got, want)
	}
	if len(rawBytes(nil)) != 0 {
		t.Error("rawBytes(nil) not empty")
	}
}

func TestPublisherLifecycle(t *testing.T) {
	SetPortnumbers(55710)
	defer SetPortnumbers(5520)

	p := NewPublisher("01K3CS0TESTRUN000000000000")
	ev := &Event{
		Index: 0,
		Time:  time.Now(),
		XIncr: 4e-10,
		Channels: []ChannelData{
			{Channel: 1, Raw: []uint16{1, 2, 3}, Volts: []float64{0, 0, 0}},
		},
	}
	for i := 0; i < 5; i++ {
		p.Publish(ev)
	}
	p.Close()
	if n := p.Dropped(); n != 0 {
		t.Errorf("%d events dropped with a near-empty queue", n)
	}
}

func TestPublisherDropsWhenQueueFull(t *testing.T) {
	// No goroutine drains this publisher, so the queue fills and the
	// overflow is counted.
	p := &Publisher{
		RunID:  "stalled",
		events: make(chan *Event, 2),
		abort:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	ev := &Event{}
	for i := 0; i < 5; i++ {
		p.Publish(ev)
	}
	if n := p.Dropped(); n != 3 {
		t.Errorf("Dropped=%d, want 3", n)
	}
}
