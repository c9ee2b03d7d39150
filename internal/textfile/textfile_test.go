package textfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteEvents(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "tek.txt")
	hdr := Header{
		Program:  "tekdaq",
		Version:  "0.3.0",
		Identity: "TEKTRONIX,TDS 3052,0,CF:91.1CT FV:v3.27",
		Created:  time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		Settings: []string{"nevents 2", "recordlength 500"},
		Channels: []int{1, 2},
	}
	w, err := NewWriter(fname, hdr)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	events := [][][]float64{
		{{0.25, 0.5}, {-0.25, -0.5}},
		{{1, 2}, {-1, -2}},
	}
	ts := time.Date(2026, 8, 23, 12, 0, 1, 0, time.UTC)
	for i, ev := range events {
		if err := w.Write(ts.Add(time.Duration(i)*time.Second), -4e-8, 4e-10, ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	want := []string{
		"# tekdaq 0.3.0",
		"# created 2026-08-23T12:00:00Z",
		"# instrument TEKTRONIX,TDS 3052,0,CF:91.1CT FV:v3.27",
		"# nevents 2",
		"# recordlength 500",
		"# columns: time[s]\tch1[V]\tch2[V]",
		"# event 0 2026-08-23T12:00:01Z",
		"-4.000000e-08\t2.500000e-01\t-2.500000e-01",
		"-3.960000e-08\t5.000000e-01\t-5.000000e-01",
		"# event 1 2026-08-23T12:00:02Z",
		"-4.000000e-08\t1.000000e+00\t-1.000000e+00",
		"-3.960000e-08\t2.000000e+00\t-2.000000e+00",
		"# events 2",
	}
	if len(lines) != len(want) {
		t.Fatalf("file has %d lines, want %d:\n%s", len(lines), len(want), raw)
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d: %q, want %q", i, line, want[i])
		}
	}
}

func TestWriteRejectsMismatch(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "bad.txt")
	w, err := NewWriter(fname, Header{Program: "tekdaq", Channels: []int{1, 2}})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	defer w.Close()

	now := time.Now()
	if err := w.Write(now, 0, 1e-9, [][]float64{{1}}); err == nil {
		t.Error("accepted wrong trace count")
	}
	if err := w.Write(now, 0, 1e-9, [][]float64{{1, 2}, {1}}); err == nil {
		t.Error("accepted mismatched trace lengths")
	}
}

func TestCloseTwice(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "twice.txt")
	w, err := NewWriter(fname, Header{Program: "tekdaq", Channels: []int{1}})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err == nil {
		t.Error("second Close did not fail")
	}
	if err := w.Write(time.Now(), 0, 1e-9, [][]float64{{1}}); err == nil {
		t.Error("Write after Close did not fail")
	}
}
