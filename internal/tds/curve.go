package tds

import (
	"fmt"
	"strconv"
)

// PrepareCurve configures the data path for curve transfers from channel ch
// with the given sample width in bytes (1 or 2): positive-integer binary
// encoding, Y point format. These settings persist on the instrument.
func (d *Device) PrepareCurve(ch, width int) error {
	if width != 1 && width != 2 {
		return fmt.Errorf("curve width %d not supported, want 1 or 2", width)
	}
	steps := [][]string{
		{"DATA:SOURCE", fmt.Sprintf("CH%d", ch)},
		{"DATA:WIDTH", strconv.Itoa(width)},
		{"DATA:ENCDG", "RPBinary"},
		{"WFMPRE:PT_Fmt", "Y"},
	}
	for _, step := range steps {
		if err := d.SendCommand(step...); err != nil {
			return err
		}
	}
	d.width = width
	return nil
}

// NumPoints queries how many samples the next curve transfer carries and
// caches the value for response framing.
func (d *Device) NumPoints() (int, error) {
	resp, err := d.Query("WFMPRE:NR_PT")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(resp)
	if err != nil {
		return 0, fmt.Errorf("WFMPRE:NR_PT? returned %q: %w", resp, err)
	}
	d.points = n
	return n, nil
}

// Curve transfers one waveform from the current DATA:SOURCE channel and
// returns the raw unsigned sample codes. PrepareCurve must have been called;
// the point count is queried on first use and cached.
func (d *Device) Curve() ([]uint16, error) {
	if d.points == 0 {
		if _, err := d.NumPoints(); err != nil {
			return nil, err
		}
	}
	if err := d.SendCommand("CURVE?"); err != nil {
		return nil, err
	}
	data, err := d.ReadResponse()
	if err != nil {
		return nil, fmt.Errorf("read curve: %w", err)
	}
	samples, err := DecodeCurve(data, d.width, d.points)
	if err != nil {
		return nil, fmt.Errorf("decode curve: %w", err)
	}
	return samples, nil
}

// DecodeCurve strips the trailing linefeed and the leading block header from
// a raw CURVE? response and decodes the samples. The header length is
// inferred by counting width*points payload bytes back from the end, which
// holds for any header the instrument emits.
func DecodeCurve(data []byte, width, points int) ([]uint16, error) {
	if len(data) > 0 && data[len(data)-1] == 0x0A {
		data = data[:len(data)-1]
	}
	headerLen := len(data) - width*points
	if headerLen < 0 {
		return nil, fmt.Errorf("curve response too short: %d bytes for %d points of width %d",
			len(data), points, width)
	}
	payload := data[headerLen:]

	samples := make([]uint16, points)
	switch width {
	case 2:
		for i := range samples {
			samples[i] = uint16(payload[2*i])<<8 | uint16(payload[2*i+1])
		}
	case 1:
		for i := range samples {
			samples[i] = uint16(payload[i])
		}
	default:
		return nil, fmt.Errorf("unsupported curve width %d", width)
	}
	return samples, nil
}
