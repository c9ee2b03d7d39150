package tds

import (
	"fmt"
	"strconv"
	"strings"
)

// Preamble describes how the device transfers a curve: sample format, record
// length, and the scaling that turns raw codes into proper units. WFMPRE?
// reports these sixteen fields separated by semicolons.
type Preamble struct {
	BytesPerSample int
	BitsPerSample  int
	Encoding       string
	BinaryFormat   string
	ByteOrder      string
	NumberOfPoints int
	WaveformID     string
	PointFormat    string
	XIncr          float64
	PtOffset       int
	XZero          float64
	XUnits         string
	YScale         float64
	YZero          float64
	YOffset        float64
	YUnit          string
}

const preambleFieldCount = 16

// ParsePreamble parses a WFMPRE? response taken with header echo off.
func ParsePreamble(s string) (*Preamble, error) {
	fields := strings.Split(strings.TrimSpace(s), ";")
	if len(fields) != preambleFieldCount {
		return nil, fmt.Errorf("waveform preamble has %d fields, want %d: %q",
			len(fields), preambleFieldCount, s)
	}

	var p Preamble
	var err error
	geti := func(i int) int {
		if err != nil {
			return 0
		}
		v, convErr := strconv.Atoi(strings.TrimSpace(fields[i]))
		if convErr != nil {
			err = fmt.Errorf("preamble field %d %q: %w", i, fields[i], convErr)
		}
		return v
	}
	getf := func(i int) float64 {
		if err != nil {
			return 0
		}
		v, convErr := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if convErr != nil {
			err = fmt.Errorf("preamble field %d %q: %w", i, fields[i], convErr)
		}
		return v
	}

	p.BytesPerSample = geti(0)
	p.BitsPerSample = geti(1)
	p.Encoding = fields[2]
	p.BinaryFormat = fields[3]
	p.ByteOrder = fields[4]
	p.NumberOfPoints = geti(5)
	p.WaveformID = strings.Trim(fields[6], `"`)
	p.PointFormat = fields[7]
	p.XIncr = getf(8)
	p.PtOffset = geti(9)
	p.XZero = getf(10)
	p.XUnits = strings.Trim(fields[11], `"`)
	p.YScale = getf(12)
	p.YZero = getf(13)
	p.YOffset = getf(14)
	p.YUnit = strings.Trim(fields[15], `"`)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Preamble queries WFMPRE? and parses the response. It reflects the current
// DATA:SOURCE channel and width, so call it after PrepareCurve.
func (d *Device) Preamble() (*Preamble, error) {
	resp, err := d.Query("WFMPRE")
	if err != nil {
		return nil, err
	}
	p, err := ParsePreamble(resp)
	if err != nil {
		return nil, fmt.Errorf("parse WFMPRE? response: %w", err)
	}
	return p, nil
}

// Volts converts raw curve samples to the preamble's vertical units, usually
// volts: (raw - y_offset) * y_scale + y_zero.
func (p *Preamble) Volts(raw []uint16) []float64 {
	out := make([]float64, len(raw))
	for i, r := range raw {
		out[i] = (float64(r)-p.YOffset)*p.YScale + p.YZero
	}
	return out
}

// Time returns the horizontal position of sample i relative to the trigger,
// in the preamble's horizontal units.
func (p *Preamble) Time(i int) float64 {
	return p.XZero + float64(i)*p.XIncr
}

// RawFromVolts inverts Volts for one value, clamped to the sample range for
// the given width. The simulator uses it to turn replayed voltage traces
// back into transfer codes.
func (p *Preamble) RawFromVolts(v float64, width int) uint16 {
	max := 65535.0
	if width == 1 {
		max = 255.0
	}
	code := (v-p.YZero)/p.YScale + p.YOffset
	if code < 0 {
		code = 0
	}
	if code > max {
		code = max
	}
	return uint16(code + 0.5)
}
