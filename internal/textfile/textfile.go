// Package textfile writes oscilloscope events as plain text. The file
// starts with a "#" comment header describing the program, the instrument
// and the capture settings, then holds one block per event: a "# event N"
// marker with the capture time, followed by one line per sample with the
// time in seconds and the voltage of each recorded channel, tab separated.
// A trailing "# events N" line records how many events the file holds.
package textfile

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"time"
)

// Header describes the capture that produced the file.
type Header struct {
	Program  string
	Version  string
	Identity string
	Created  time.Time
	Settings []string
	Channels []int
}

// Writer writes events into one text file. Not safe for concurrent use.
type Writer struct {
	FileName      string
	Channels      []int
	EventsWritten int

	file   *os.File
	writer *bufio.Writer
	closed bool
}

// NewWriter creates filename (replacing any existing file) and writes the
// header.
func NewWriter(filename string, hdr Header) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		FileName: filename,
		Channels: hdr.Channels,
		file:     file,
		writer:   bufio.NewWriterSize(file, 32768),
	}
	if err := w.writeHeader(hdr); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader(hdr Header) error {
	created := hdr.Created
	if created.IsZero() {
		created = time.Now()
	}
	fmt.Fprintf(w.writer, "# %s %s\n", hdr.Program, hdr.Version)
	fmt.Fprintf(w.writer, "# created %s\n", created.Format(time.RFC3339))
	if hdr.Identity != "" {
		fmt.Fprintf(w.writer, "# instrument %s\n", hdr.Identity)
	}
	for _, s := range hdr.Settings {
		fmt.Fprintf(w.writer, "# %s\n", s)
	}
	fmt.Fprintf(w.writer, "# columns: time[s]")
	for _, ch := range hdr.Channels {
		fmt.Fprintf(w.writer, "\tch%d[V]", ch)
	}
	_, err := fmt.Fprintln(w.writer)
	return err
}

// Write appends one event captured at ts. volts holds one trace per
// channel, in the order given in the header; all traces must have the same
// length. Sample i is stamped with time xzero+i*xinc.
func (w *Writer) Write(ts time.Time, xzero, xinc float64, volts [][]float64) error {
	if w.closed {
		return errors.New("writer is closed")
	}
	if len(volts) != len(w.Channels) {
		return fmt.Errorf("got %d traces for %d channels", len(volts), len(w.Channels))
	}
	n := 0
	for i := range volts {
		if i > 0 && len(volts[i]) != n {
			return fmt.Errorf("trace lengths differ: %d vs %d", len(volts[i]), n)
		}
		n = len(volts[i])
	}

	fmt.Fprintf(w.writer, "# event %d %s\n", w.EventsWritten, ts.Format(time.RFC3339))
	for i := 0; i < n; i++ {
		fmt.Fprintf(w.writer, "%.6e", xzero+float64(i)*xinc)
		for _, trace := range volts {
			fmt.Fprintf(w.writer, "\t%.6e", trace[i])
		}
		if _, err := fmt.Fprintln(w.writer); err != nil {
			return err
		}
	}
	w.EventsWritten++
	return nil
}

// Flush flushes the write buffer.
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// Close writes the trailing event count and closes the file. The Writer is
// unusable afterwards.
func (w *Writer) Close() error {
	if w.closed {
		return errors.New("writer is closed")
	}
	w.closed = true
	fmt.Fprintf(w.writer, "# events %d\n", w.EventsWritten)
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
