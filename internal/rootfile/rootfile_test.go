package rootfile

import (
	"math"
	"path/filepath"
	"testing"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rtree"
)

func TestWriteAndReadBack(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "tek.root")
	w, err := NewWriter(fname, []int{1, 2})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	const xinc = 4.0e-10
	events := [][][]float64{
		{{0.0, 0.1, 0.2}, {0.0, -0.1, -0.2}},
		{{1.0, 1.5, 2.0}, {-1.0, -1.5, -2.0}},
	}
	for _, ev := range events {
		if err := w.Write(xinc, ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if w.EventsWritten != 2 {
		t.Errorf("EventsWritten=%d, want 2", w.EventsWritten)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := groot.Open(fname)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()

	obj, err := f.Get("data")
	if err != nil {
		t.Fatalf("no data tree: %v", err)
	}
	tree, ok := obj.(rtree.Tree)
	if !ok {
		t.Fatalf("data is %T, not a tree", obj)
	}
	if got := tree.Entries(); got != 2 {
		t.Fatalf("tree has %d entries, want 2", got)
	}

	var (
		n        int32
		ch1, ch2 []float64
		xincRead float64
	)
	rvars := []rtree.ReadVar{
		{Name: "n", Value: &n},
		{Name: "ch1", Value: &ch1},
		{Name: "ch2", Value: &ch2},
		{Name: "xinc", Value: &xincRead},
	}
	r, err := rtree.NewReader(tree, rvars)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	i := 0
	err = r.Read(func(ctx rtree.RCtx) error {
		if n != 3 {
			t.Errorf("event %d: n=%d, want 3", i, n)
		}
		for j := range ch1 {
			if ch1[j] != events[i][0][j] {
				t.Errorf("event %d: ch1[%d]=%v, want %v", i, j, ch1[j], events[i][0][j])
			}
			if ch2[j] != events[i][1][j] {
				t.Errorf("event %d: ch2[%d]=%v, want %v", i, j, ch2[j], events[i][1][j])
			}
		}
		if math.Abs(xincRead-xinc) > 1e-20 {
			t.Errorf("event %d: xinc=%v, want %v", i, xincRead, xinc)
		}
		i++
		return nil
	})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if i != 2 {
		t.Errorf("read %d events, want 2", i)
	}
}

func TestSingleChannel(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "one.root")
	w, err := NewWriter(fname, []int{2})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Write(1e-9, [][]float64{{5, 6, 7, 8}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := groot.Open(fname)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	obj, err := f.Get("data")
	if err != nil {
		t.Fatalf("no data tree: %v", err)
	}
	tree := obj.(rtree.Tree)
	if got := tree.Entries(); got != 1 {
		t.Errorf("tree has %d entries, want 1", got)
	}
	var seen bool
	for _, b := range tree.Branches() {
		if b.Name() == "ch2" {
			seen = true
		}
		if b.Name() == "ch1" {
			t.Errorf("unexpected ch1 branch in single-channel file")
		}
	}
	if !seen {
		t.Errorf("ch2 branch missing")
	}
}

func TestWriteRejectsMismatch(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "bad.root")
	w, err := NewWriter(fname, []int{1, 2})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	if err := w.Write(1e-9, [][]float64{{1, 2, 3}}); err == nil {
		t.Error("accepted wrong trace count")
	}
	if err := w.Write(1e-9, [][]float64{{1, 2, 3}, {1, 2}}); err == nil {
		t.Error("accepted mismatched trace lengths")
	}
}
