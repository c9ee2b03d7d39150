// Package rootfile writes oscilloscope events to a ROOT file: one TTree
// named "data" holding a float64 vector branch per recorded channel (ch1,
// ch2), the shared sample count branch n, and the sample interval branch
// xinc. Files are written with go-hep's groot and need no ROOT
// installation to produce or read.
package rootfile

import (
	"fmt"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"
)

// Writer writes events into one ROOT file. Not safe for concurrent use.
type Writer struct {
	FileName      string
	Channels      []int
	EventsWritten int

	file *riofs.File
	tree rtree.Writer

	n    int32
	ch   map[int]*[]float64
	xinc float64
}

// NewWriter creates filename (replacing any existing file) and defines the
// tree for the given channels, a subset of {1, 2}.
func NewWriter(filename string, channels []int) (*Writer, error) {
	f, err := groot.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}

	w := &Writer{
		FileName: filename,
		Channels: channels,
		file:     f,
		ch:       make(map[int]*[]float64),
	}
	wvars := []rtree.WriteVar{{Name: "n", Value: &w.n}}
	for _, ch := range channels {
		if ch < 1 || ch > 2 {
			f.Close()
			return nil, fmt.Errorf("channel %d out of range", ch)
		}
		buf := new([]float64)
		w.ch[ch] = buf
		wvars = append(wvars, rtree.WriteVar{
			Name:  fmt.Sprintf("ch%d", ch),
			Value: buf,
			Count: "n",
		})
	}
	wvars = append(wvars, rtree.WriteVar{Name: "xinc", Value: &w.xinc})

	tree, err := rtree.NewWriter(f, "data", wvars)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create tree: %w", err)
	}
	w.tree = tree
	return w, nil
}

// Write appends one event. volts holds one trace per channel, in the order
// given to NewWriter; all traces must have the same length.
func (w *Writer) Write(xinc float64, volts [][]float64) error {
	if len(volts) != len(w.Channels) {
		return fmt.Errorf("got %d traces for %d channels", len(volts), len(w.Channels))
	}
	w.n = 0
	for i, ch := range w.Channels {
		if i > 0 && len(volts[i]) != int(w.n) {
			return fmt.Errorf("trace lengths differ: %d vs %d", len(volts[i]), w.n)
		}
		w.n = int32(len(volts[i]))
		*w.ch[ch] = volts[i]
	}
	w.xinc = xinc

	if _, err := w.tree.Write(); err != nil {
		return fmt.Errorf("write event %d: %w", w.EventsWritten, err)
	}
	w.EventsWritten++
	return nil
}

// Flush commits buffered tree data to the file.
func (w *Writer) Flush() error {
	return w.tree.Flush()
}

// Close finalizes the tree and the file. The Writer is unusable afterwards.
func (w *Writer) Close() error {
	if err := w.tree.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close tree: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", w.FileName, err)
	}
	return nil
}
