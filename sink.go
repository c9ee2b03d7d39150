package tekdaq

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/samdejong86/tektronix-serial-daq/internal/rootfile"
	"github.com/samdejong86/tektronix-serial-daq/internal/textfile"
)

// Sink receives decoded events and writes them to one output file.
type Sink interface {
	WriteEvent(*Event) error
	Flush() error
	Close() error
	Filename() string
}

// NewSink selects the output format from the filename extension: ".root"
// files get the ROOT tree layout, anything else plain text. identity is the
// instrument's *IDN? response, recorded in the text header.
func NewSink(filename string, cfg Config, identity string) (Sink, error) {
	if strings.EqualFold(filepath.Ext(filename), ".root") {
		w, err := rootfile.NewWriter(filename, cfg.Channels())
		if err != nil {
			return nil, err
		}
		return &rootSink{w}, nil
	}
	hdr := textfile.Header{
		Program:  "tekdaq",
		Version:  Build.Version,
		Identity: identity,
		Settings: cfg.settingsLines(),
		Channels: cfg.Channels(),
	}
	w, err := textfile.NewWriter(filename, hdr)
	if err != nil {
		return nil, err
	}
	return &textSink{w}, nil
}

// settingsLines renders the run settings for the text file header.
func (c *Config) settingsLines() []string {
	lines := []string{
		fmt.Sprintf("port %s", c.Port),
		fmt.Sprintf("nevents %d", c.NEvents),
	}
	if c.Keep {
		return append(lines, "keep: instrument settings left untouched")
	}
	lines = append(lines,
		fmt.Sprintf("recordlength %d", c.RecordLength()),
		fmt.Sprintf("trigger %s %s at %g V", c.TriggerSource(), c.TrigSlope, c.TrigLevel),
		fmt.Sprintf("horizontal %g s/div, pretrigger %g%%", c.HScale, c.Pretrigger),
	)
	for _, ch := range c.Channels() {
		lines = append(lines, fmt.Sprintf("ch%d %g V/div %s %s",
			ch, c.VScale(ch), c.Coupling(ch), c.Impedance(ch)))
	}
	return lines
}

type rootSink struct {
	w *rootfile.Writer
}

func (s *rootSink) WriteEvent(ev *Event) error {
	return s.w.Write(ev.XIncr, ev.VoltTraces())
}

func (s *rootSink) Flush() error     { return s.w.Flush() }
func (s *rootSink) Close() error     { return s.w.Close() }
func (s *rootSink) Filename() string { return s.w.FileName }

type textSink struct {
	w *textfile.Writer
}

func (s *textSink) WriteEvent(ev *Event) error {
	return s.w.Write(ev.Time, ev.XZero, ev.XIncr, ev.VoltTraces())
}

func (s *textSink) Flush() error     { return s.w.Flush() }
func (s *textSink) Close() error     { return s.w.Close() }
func (s *textSink) Filename() string { return s.w.FileName }
