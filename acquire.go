package tekdaq

// Contains the Acquisition engine: it configures the oscilloscope, runs the
// trigger/transfer loop, and fans decoded events out to the sink, the
// publisher, and the run database.

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/samdejong86/tektronix-serial-daq/internal/rundb"
	"github.com/samdejong86/tektronix-serial-daq/internal/tds"
)

// acquirePollInterval is how often the sequence-complete poll runs. At
// 38400 baud one ACQUIRE:STATE? round trip takes a few milliseconds, so
// polling faster buys nothing.
const acquirePollInterval = 10 * time.Millisecond

// RunSummary reports what one capture run produced.
type RunSummary struct {
	RunID        string
	Identity     string
	Events       int
	Samples      int
	XIncr        float64
	BytesWritten int64
	Duration     time.Duration
	Aborted      bool
	Summaries    map[int]WaveformSummary
}

// Acquisition executes one capture run against an open device. Construct
// with NewAcquisition, attach the optional sink, publisher and run
// database, then call Run once.
type Acquisition struct {
	cfg  Config
	dev  *tds.Device
	sink Sink
	pub  *Publisher
	db   *rundb.Connection

	runID     string
	preambles map[int]*tds.Preamble
	runmsg    *rundb.RunMessage
}

// NewAcquisition prepares a run of cfg.NEvents events on dev. The device
// must already be open; the Acquisition does not close it.
func NewAcquisition(cfg Config, dev *tds.Device) *Acquisition {
	if cfg.ReadTimeout > 0 {
		dev.SetReadTimeout(cfg.ReadTimeout)
	}
	return &Acquisition{
		cfg:       cfg,
		dev:       dev,
		runID:     rundb.NewRunID(),
		preambles: make(map[int]*tds.Preamble),
	}
}

// RunID returns the ULID identifying this run in filenames, published
// frames, and the run database.
func (a *Acquisition) RunID() string { return a.runID }

// SetSink attaches the output file writer. Without one, events are decoded
// and summarized but not saved.
func (a *Acquisition) SetSink(s Sink) { a.sink = s }

// SetPublisher attaches a live-monitoring publisher.
func (a *Acquisition) SetPublisher(p *Publisher) { a.pub = p }

// SetRunDB attaches the run database connection.
func (a *Acquisition) SetRunDB(db *rundb.Connection) { a.db = db }

// Run captures cfg.NEvents events, checking abort between events. The
// instrument is always released (panel unlocked, run/stop restored) and the
// sink closed, whether the run completes, fails, or aborts.
func (a *Acquisition) Run(abort <-chan struct{}) (RunSummary, error) {
	start := time.Now()
	summary := RunSummary{
		RunID:     a.runID,
		Summaries: make(map[int]WaveformSummary),
	}
	defer a.finish(&summary, start)

	// Identity first: refuse to push settings at an unknown instrument.
	id, err := a.dev.Identify()
	if err != nil {
		return summary, fmt.Errorf("identify: %w", err)
	}
	summary.Identity = id
	UpdateLogger.Printf("Connected to %s", id)
	if !tds.ValidIdentity(id) {
		return summary, fmt.Errorf("device identifies as %q, want a TDS3000-series oscilloscope", id)
	}

	if a.cfg.Keep {
		if err := a.readBackSettings(); err != nil {
			return summary, err
		}
	} else {
		if err := a.configure(); err != nil {
			return summary, err
		}
	}

	if err := a.prepareDataPath(&summary); err != nil {
		return summary, err
	}
	a.recordRunStart(&summary, start)

	if err := a.dev.SetLocked(true); err != nil {
		return summary, fmt.Errorf("lock front panel: %w", err)
	}
	if err := a.dev.SetSingleSequence(true); err != nil {
		return summary, fmt.Errorf("select single sequence: %w", err)
	}

	for i := 0; i < a.cfg.NEvents; i++ {
		select {
		case <-abort:
			summary.Aborted = true
			UpdateLogger.Printf("Run aborted after %d of %d events", i, a.cfg.NEvents)
			return summary, nil
		default:
		}

		ev, err := a.captureEvent(i)
		if err != nil {
			return summary, fmt.Errorf("event %d: %w", i, err)
		}
		for _, cd := range ev.Channels {
			summary.Summaries[cd.Channel] = cd.Summary
		}
		if a.sink != nil {
			if err := a.sink.WriteEvent(ev); err != nil {
				return summary, fmt.Errorf("write event %d: %w", i, err)
			}
		}
		if a.pub != nil {
			a.pub.Publish(ev)
		}
		summary.Events++
		UpdateLogger.Printf("Event %d captured", i)
		if (i+1)%10 == 0 || i+1 == a.cfg.NEvents {
			fmt.Printf("Captured %d of %d events\n", i+1, a.cfg.NEvents)
		}
	}
	return summary, nil
}

// configure pushes every channel, trigger, and horizontal setting from the
// config to the instrument.
func (a *Acquisition) configure() error {
	for _, ch := range a.cfg.Channels() {
		if err := a.dev.SetVerticalScale(ch, formatNR3(a.cfg.VScale(ch))); err != nil {
			return fmt.Errorf("set channel %d scale: %w", ch, err)
		}
		if err := a.dev.SetCoupling(ch, a.cfg.Coupling(ch)); err != nil {
			return fmt.Errorf("set channel %d coupling: %w", ch, err)
		}
		if err := a.dev.SetImpedance(ch, a.cfg.Impedance(ch)); err != nil {
			return fmt.Errorf("set channel %d impedance: %w", ch, err)
		}
		if err := a.dev.SelectChannel(ch, true); err != nil {
			return fmt.Errorf("select channel %d: %w", ch, err)
		}
	}
	if err := a.dev.SetTriggerLevel(formatNR3(a.cfg.TrigLevel)); err != nil {
		return fmt.Errorf("set trigger level: %w", err)
	}
	if err := a.dev.SetTriggerSource(a.cfg.TriggerSource()); err != nil {
		return fmt.Errorf("set trigger source: %w", err)
	}
	if err := a.dev.SetTriggerSlope(a.cfg.TrigSlope); err != nil {
		return fmt.Errorf("set trigger slope: %w", err)
	}
	if err := a.dev.SetHorizontalScale(formatNR3(a.cfg.HScale)); err != nil {
		return fmt.Errorf("set horizontal scale: %w", err)
	}
	if err := a.dev.SetPretrigger(formatNR3(a.cfg.Pretrigger)); err != nil {
		return fmt.Errorf("set pretrigger: %w", err)
	}
	if err := a.dev.SetRecordLength(a.cfg.RecordLength()); err != nil {
		return fmt.Errorf("set record length: %w", err)
	}
	return nil
}

// readBackSettings logs the instrument's own settings instead of changing
// them, for runs started with the keep flag.
func (a *Acquisition) readBackSettings() error {
	hscale, err := a.dev.HorizontalScale()
	if err != nil {
		return fmt.Errorf("read horizontal scale: %w", err)
	}
	UpdateLogger.Printf("Keeping instrument settings: horizontal %s s/div", hscale)
	for _, ch := range a.cfg.Channels() {
		vscale, err := a.dev.VerticalScale(ch)
		if err != nil {
			return fmt.Errorf("read channel %d scale: %w", ch, err)
		}
		UpdateLogger.Printf("Keeping channel %d at %s V/div", ch, vscale)
	}
	return nil
}

// prepareDataPath sets up curve transfers and collects each channel's
// preamble. The first enabled channel's x increment becomes the run's
// sample interval.
func (a *Acquisition) prepareDataPath(summary *RunSummary) error {
	channels := a.cfg.Channels()
	for _, ch := range channels {
		if err := a.dev.PrepareCurve(ch, 2); err != nil {
			return fmt.Errorf("prepare channel %d: %w", ch, err)
		}
		p, err := a.dev.Preamble()
		if err != nil {
			return fmt.Errorf("read channel %d preamble: %w", ch, err)
		}
		a.preambles[ch] = p
		UpdateLogger.Printf("Channel %d preamble: %s", ch, spew.Sdump(p))
	}
	npts, err := a.dev.NumPoints()
	if err != nil {
		return fmt.Errorf("read record length: %w", err)
	}
	summary.Samples = npts
	summary.XIncr = a.preambles[channels[0]].XIncr
	return nil
}

// captureEvent arms one single sequence, waits for it to complete, and
// transfers every enabled channel. A wait timeout earns one forced trigger
// and one more wait before the event fails.
func (a *Acquisition) captureEvent(index int) (*Event, error) {
	if err := a.dev.SetAcquireState(true); err != nil {
		return nil, fmt.Errorf("arm: %w", err)
	}
	if err := a.waitForStop(); err != nil {
		ProblemLogger.Printf("Event %d: %v; forcing a trigger", index, err)
		if err := a.dev.ForceTrigger(); err != nil {
			return nil, fmt.Errorf("force trigger: %w", err)
		}
		if err := a.waitForStop(); err != nil {
			return nil, err
		}
	}

	channels := a.cfg.Channels()
	first := a.preambles[channels[0]]
	ev := &Event{
		Index: index,
		Time:  time.Now(),
		XZero: first.XZero,
		XIncr: first.XIncr,
	}
	for _, ch := range channels {
		if err := a.dev.PrepareCurve(ch, 2); err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		raw, err := a.dev.Curve()
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", ch, err)
		}
		p := a.preambles[ch]
		volts := p.Volts(raw)
		ev.Channels = append(ev.Channels, ChannelData{
			Channel: ch,
			Raw:     raw,
			Volts:   volts,
			Summary: Summarize(volts, pretriggerFraction(p)),
		})
	}
	return ev, nil
}

// waitForStop polls ACQUIRE:STATE? until the armed sequence completes.
func (a *Acquisition) waitForStop() error {
	timeout := a.cfg.WaitTimeout
	if timeout <= 0 {
		timeout = tds.DefaultResponseTimeout
	}
	deadline := time.Now().Add(timeout)
	for {
		running, err := a.dev.AcquireState()
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("sequence did not complete within %v", timeout)
		}
		time.Sleep(acquirePollInterval)
	}
}

// recordRunStart registers the run in the database once the effective
// record length and timebase are known.
func (a *Acquisition) recordRunStart(summary *RunSummary, start time.Time) {
	if a.db == nil {
		return
	}
	a.runmsg = &rundb.RunMessage{
		ID:        a.runID,
		Hostname:  Build.Host,
		Version:   Build.Version,
		GoVersion: runtime.Version(),
		Port:      a.cfg.Port,
		Identity:  summary.Identity,
		Nevents:   a.cfg.NEvents,
		Nsamples:  summary.Samples,
		Timebase:  summary.XIncr,
		Start:     start,
	}
	a.db.RecordRun(a.runmsg)
}

// finish releases the instrument and the sink. It runs on every exit path.
func (a *Acquisition) finish(summary *RunSummary, start time.Time) {
	if a.sink != nil {
		name := a.sink.Filename()
		if err := a.sink.Close(); err != nil {
			ProblemLogger.Printf("Could not close %s: %v", name, err)
		}
		if fi, err := os.Stat(name); err == nil {
			summary.BytesWritten = fi.Size()
		}
		if a.db != nil {
			a.db.RecordFile(&rundb.FileMessage{
				RunID:    a.runID,
				Filename: name,
				Filetype: strings.TrimPrefix(filepath.Ext(name), "."),
				Events:   summary.Events,
				Size:     summary.BytesWritten,
				Created:  time.Now(),
			})
		}
	}
	if err := a.dev.SetSingleSequence(false); err != nil {
		ProblemLogger.Printf("Could not restore run/stop mode: %v", err)
	}
	if err := a.dev.SetLocked(false); err != nil {
		ProblemLogger.Printf("Could not unlock the front panel: %v", err)
	}
	summary.Duration = time.Since(start)
	if a.db != nil {
		a.db.FinishRun(a.runmsg)
	}
}

// pretriggerFraction recovers the pretrigger portion of the record from the
// preamble. It holds under the keep flag too, where the configured value
// need not match the instrument.
func pretriggerFraction(p *tds.Preamble) float64 {
	if p.XIncr <= 0 || p.NumberOfPoints <= 0 {
		return 0
	}
	frac := -p.XZero / (p.XIncr * float64(p.NumberOfPoints))
	if frac < 0 || frac > 1 {
		return 0
	}
	return frac
}

// formatNR3 renders a float in the exponent form the instrument accepts.
func formatNR3(v float64) string {
	return strconv.FormatFloat(v, 'E', -1, 64)
}
