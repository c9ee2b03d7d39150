package tds

import (
	"fmt"
	"io"
	"strings"
)

// HardcopyOptions selects the image format and layout of a screen grab.
// Supported formats vary by model; RLE (run-length-encoded Windows bitmap)
// transfers fastest, with TIFF close behind. BMP and BMPColor are
// uncompressed and take minutes at low baud rates.
type HardcopyOptions struct {
	Format    string // default RLE
	Landscape bool
	Inksaver  bool // white graticule background
}

// Screenshot grabs a hardcopy of the device screen over the data connection
// and writes the image bytes to w.
func (d *Device) Screenshot(w io.Writer, opts HardcopyOptions) error {
	format := opts.Format
	if format == "" {
		format = "RLE"
	}
	layout := "portrait"
	if opts.Landscape {
		layout = "landscape"
	}
	inksaver := "off"
	if opts.Inksaver {
		inksaver = "on"
	}
	steps := [][]string{
		{"HARDCOPY:FORMAT", format},
		{"HARDCOPY:LAYOUT", layout},
		{"HARDCOPY:INKSAVER", inksaver},
		{"HARDCOPY:PORT", "RS232"},
		{"HARDCOPY", "START"},
	}
	for _, step := range steps {
		if err := d.SendCommand(step...); err != nil {
			return err
		}
	}
	data, err := d.ReadResponse()
	if err != nil {
		return fmt.Errorf("read hardcopy: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write hardcopy: %w", err)
	}
	return nil
}

// CheckImageFormat reports whether the device supports a hardcopy format by
// setting it and reading it back; the device keeps its previous value when
// it rejects one. The original format is restored before returning.
func (d *Device) CheckImageFormat(format string) (bool, error) {
	orig, err := d.Query("HARDCOPY:FORMAT")
	if err != nil {
		return false, err
	}
	if err := d.SendCommand("HARDCOPY:FORMAT", format); err != nil {
		return false, err
	}
	resp, err := d.Query("HARDCOPY:FORMAT")
	if err != nil {
		return false, err
	}
	supported := strings.HasPrefix(strings.ToLower(format), strings.ToLower(resp))
	if err := d.SendCommand("HARDCOPY:FORMAT", orig); err != nil {
		return supported, err
	}
	return supported, nil
}
