package tekdaq

// Contains the Publisher, which publishes captured waveforms and their
// summary statistics on ZMQ PUB sockets for live monitoring clients.

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// waveformHeader is the JSON frame that precedes the raw samples on the
// waveform socket.
type waveformHeader struct {
	Run     string
	Event   int
	Channel int
	Points  int
	XIncr   float64
	XZero   float64
	Time    time.Time
}

// summaryMessage is the JSON body published on the summary socket.
type summaryMessage struct {
	Run     string
	Event   int
	Channel int
	Summary WaveformSummary
}

// Publisher publishes events on the ports in the global Ports struct:
// waveforms on Ports.Waveforms, summaries on Ports.Summaries. Publishing
// never blocks the caller; events arriving faster than the sockets drain
// are dropped and counted.
type Publisher struct {
	RunID string

	events  chan *Event
	abort   chan struct{}
	done    chan struct{}
	dropped int64
}

// NewPublisher starts the publisher goroutine for one run.
func NewPublisher(runID string) *Publisher {
	p := &Publisher{
		RunID:  runID,
		events: make(chan *Event, 16),
		abort:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish hands one event to the publisher goroutine, dropping it when the
// queue is full.
func (p *Publisher) Publish(ev *Event) {
	select {
	case p.events <- ev:
	default:
		atomic.AddInt64(&p.dropped, 1)
	}
}

// Dropped reports how many events were dropped because the queue was full.
func (p *Publisher) Dropped() int64 {
	return atomic.LoadInt64(&p.dropped)
}

// Close drains pending events, then terminates the sockets. It blocks until
// the publisher goroutine has exited.
func (p *Publisher) Close() {
	close(p.abort)
	<-p.done
}

// run owns the sockets. ZMQ sockets are not safe for concurrent use, so
// they are created and used only on this goroutine.
func (p *Publisher) run() {
	defer close(p.done)

	wavesock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		ProblemLogger.Printf("Could not create waveform PUB socket: %v", err)
		return
	}
	defer wavesock.Close()
	if err = wavesock.Bind(fmt.Sprintf("tcp://*:%d", Ports.Waveforms)); err != nil {
		ProblemLogger.Printf("Could not bind waveform PUB socket to port %d: %v", Ports.Waveforms, err)
		return
	}

	sumsock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		ProblemLogger.Printf("Could not create summary PUB socket: %v", err)
		return
	}
	defer sumsock.Close()
	if err = sumsock.Bind(fmt.Sprintf("tcp://*:%d", Ports.Summaries)); err != nil {
		ProblemLogger.Printf("Could not bind summary PUB socket to port %d: %v", Ports.Summaries, err)
		return
	}

	for {
		select {
		case <-p.abort:
			// Drain whatever is already queued before terminating.
			for {
				select {
				case ev := <-p.events:
					p.send(wavesock, sumsock, ev)
				default:
					return
				}
			}
		case ev := <-p.events:
			p.send(wavesock, sumsock, ev)
		}
	}
}

func (p *Publisher) send(wavesock, sumsock *zmq.Socket, ev *Event) {
	for _, cd := range ev.Channels {
		hdr := waveformHeader{
			Run:     p.RunID,
			Event:   ev.Index,
			Channel: cd.Channel,
			Points:  len(cd.Raw),
			XIncr:   ev.XIncr,
			XZero:   ev.XZero,
			Time:    ev.Time,
		}
		hdrJSON, err := json.Marshal(hdr)
		if err != nil {
			ProblemLogger.Printf("Could not encode waveform header: %v", err)
			continue
		}
		if _, err = wavesock.SendMessage("waveform", hdrJSON, rawBytes(cd.Raw)); err != nil {
			ProblemLogger.Printf("Could not publish waveform: %v", err)
		}

		body, err := json.Marshal(summaryMessage{
			Run:     p.RunID,
			Event:   ev.Index,
			Channel: cd.Channel,
			Summary: cd.Summary,
		})
		if err != nil {
			ProblemLogger.Printf("Could not encode summary: %v", err)
			continue
		}
		if _, err = sumsock.SendMessage("summary", body); err != nil {
			ProblemLogger.Printf("Could not publish summary: %v", err)
		}
	}
}

// rawBytes encodes samples as little-endian uint16 for the wire.
func rawBytes(raw []uint16) []byte {
	buf := make([]byte, 2*len(raw))
	for i, v := range raw {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return buf
}
