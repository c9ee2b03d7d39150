package tds

import (
	"bytes"
	"testing"
)

func TestDecodeCurve(t *testing.T) {
	// Block header, two 16-bit samples, trailing linefeed.
	data := []byte{'#', '1', '4', 0x80, 0x00, 0x12, 0x34, 0x0A}
	samples, err := DecodeCurve(data, 2, 2)
	if err != nil {
		t.Fatalf("DecodeCurve: %v", err)
	}
	want := []uint16{0x8000, 0x1234}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample %d = %#x, want %#x", i, samples[i], want[i])
		}
	}
}

func TestDecodeCurveWidthOne(t *testing.T) {
	data := []byte{'#', '1', '3', 10, 20, 30}
	samples, err := DecodeCurve(data, 1, 3)
	if err != nil {
		t.Fatalf("DecodeCurve: %v", err)
	}
	for i, want := range []uint16{10, 20, 30} {
		if samples[i] != want {
			t.Errorf("sample %d = %d, want %d", i, samples[i], want)
		}
	}
}

func TestDecodeCurveNoLinefeed(t *testing.T) {
	// Without the trailing linefeed the payload still counts back from
	// the end, so the header absorbs the difference.
	data := []byte{'#', '1', '2', 0xAB, 0xCD}
	samples, err := DecodeCurve(data, 2, 1)
	if err != nil {
		t.Fatalf("DecodeCurve: %v", err)
	}
	if samples[0] != 0xABCD {
		t.Errorf("sample = %#x, want 0xABCD", samples[0])
	}
}

func TestDecodeCurveTooShort(t *testing.T) {
	if _, err := DecodeCurve([]byte{0x01, 0x02}, 2, 500); err == nil {
		t.Error("DecodeCurve accepted a truncated response")
	}
	if _, err := DecodeCurve(nil, 2, 1); err == nil {
		t.Error("DecodeCurve accepted an empty response")
	}
}

func TestCurveAgainstSimulator(t *testing.T) {
	dev, _ := simDevice(SimConfig{Seed: 7})
	if err := dev.SetRecordLength(500); err != nil {
		t.Fatal(err)
	}
	if err := dev.PrepareCurve(1, 2); err != nil {
		t.Fatalf("PrepareCurve: %v", err)
	}
	n, err := dev.NumPoints()
	if err != nil {
		t.Fatalf("NumPoints: %v", err)
	}
	if n != 500 {
		t.Fatalf("NumPoints = %d, want 500", n)
	}
	pre, err := dev.Preamble()
	if err != nil {
		t.Fatalf("Preamble: %v", err)
	}
	if pre.NumberOfPoints != 500 || pre.BytesPerSample != 2 {
		t.Errorf("preamble reports %d points of %d bytes, want 500 of 2",
			pre.NumberOfPoints, pre.BytesPerSample)
	}

	samples, err := dev.Curve()
	if err != nil {
		t.Fatalf("Curve: %v", err)
	}
	if len(samples) != 500 {
		t.Fatalf("curve has %d samples, want 500", len(samples))
	}
	volts := pre.Volts(samples)
	span := 10.24 * 0.1 // full code range at the default 0.1 V/div
	for i, v := range volts {
		if v < -span/2 || v > span/2 {
			t.Fatalf("sample %d = %v V, outside the transfer range", i, v)
		}
	}
}

func TestCurveWidthValidation(t *testing.T) {
	dev, _ := simDevice(SimConfig{Seed: 1})
	if err := dev.PrepareCurve(1, 3); err == nil {
		t.Error("PrepareCurve accepted width 3")
	}
}

func TestScreenshot(t *testing.T) {
	dev, sim := simDevice(SimConfig{Seed: 1})
	var buf bytes.Buffer
	err := dev.Screenshot(&buf, HardcopyOptions{Format: "BMP", Inksaver: true})
	if err != nil {
		t.Fatalf("Screenshot: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("Screenshot wrote no data")
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("BM")) {
		t.Errorf("hardcopy payload starts with %q, want BM", buf.Bytes()[:2])
	}
	cmds := sim.Commands()
	wantTail := []string{
		"HARDCOPY:FORMAT BMP",
		"HARDCOPY:LAYOUT portrait",
		"HARDCOPY:INKSAVER on",
		"HARDCOPY:PORT RS232",
		"HARDCOPY START",
	}
	if len(cmds) < len(wantTail) {
		t.Fatalf("only %d commands sent: %v", len(cmds), cmds)
	}
	tail := cmds[len(cmds)-len(wantTail):]
	for i, want := range wantTail {
		if tail[i] != want {
			t.Errorf("hardcopy command %d = %q, want %q", i, tail[i], want)
		}
	}
}

func TestCheckImageFormatRestoresSetting(t *testing.T) {
	dev, sim := simDevice(SimConfig{Seed: 1})
	ok, err := dev.CheckImageFormat("PNG")
	if err != nil {
		t.Fatalf("CheckImageFormat: %v", err)
	}
	if !ok {
		t.Error("CheckImageFormat reported PNG unsupported on the simulator")
	}
	cmds := sim.Commands()
	last := cmds[len(cmds)-1]
	if last != "HARDCOPY:FORMAT RLE" {
		t.Errorf("last command %q, want the original format restored", last)
	}
}
