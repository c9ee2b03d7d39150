// Command tekshot grabs a hardcopy of a TDS3000-series oscilloscope screen
// over the serial port and saves it to a file.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tekdaq "github.com/samdejong86/tektronix-serial-daq"
	"github.com/samdejong86/tektronix-serial-daq/internal/tds"
)

func main() {
	port := flag.String("p", "/dev/ttyUSB0", "serial device, or host:port with --tcp")
	flag.StringVar(port, "port", "/dev/ttyUSB0", "serial device, or host:port with --tcp")
	baud := flag.Int("r", 38400, "serial baud rate")
	flag.IntVar(baud, "baudrate", 38400, "serial baud rate")
	output := flag.String("o", "screen.bmp", "image file to write")
	flag.StringVar(output, "output", "screen.bmp", "image file to write")
	format := flag.String("f", "RLE", "hardcopy format the instrument should produce (RLE, TIFF, BMP, ...)")
	flag.StringVar(format, "format", "RLE", "hardcopy format the instrument should produce (RLE, TIFF, BMP, ...)")
	landscape := flag.Bool("landscape", false, "rotate the image to landscape")
	inksaver := flag.Bool("inksaver", true, "white graticule background")
	tcp := flag.Bool("tcp", false, "interpret --port as a host:port TCP address")
	sim := flag.Bool("sim", false, "grab from a built-in simulated oscilloscope")
	printVersion := flag.Bool("version", false, "print version and quit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is tekshot version %s\n", tekdaq.Build.Version)
		os.Exit(0)
	}

	var conn tds.Conn
	var err error
	switch {
	case *sim:
		conn = tds.NewSimulator(tds.SimConfig{})
	case *tcp:
		conn, err = tds.OpenTCP(*port, 5*time.Second)
	default:
		conn, err = tds.OpenSerial(*port, *baud)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open the instrument: %v\n", err)
		os.Exit(1)
	}
	dev := tds.New(conn)
	defer dev.Close()

	if err := dev.CheckIdentity(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Untransferable formats are silently kept at the previous value by the
	// instrument, so probe before spending minutes on a transfer.
	supported, err := dev.CheckImageFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not probe format %s: %v\n", *format, err)
		os.Exit(1)
	}
	if !supported {
		fmt.Fprintf(os.Stderr, "This instrument does not support the %s hardcopy format\n", *format)
		os.Exit(1)
	}

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create %s: %v\n", *output, err)
		os.Exit(1)
	}
	defer f.Close()

	opts := tds.HardcopyOptions{Format: *format, Landscape: *landscape, Inksaver: *inksaver}
	start := time.Now()
	if err := dev.Screenshot(f, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Hardcopy failed: %v\n", err)
		os.Exit(1)
	}
	fi, err := f.Stat()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not stat %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d bytes to %s in %v\n", fi.Size(), *output, time.Since(start).Round(time.Millisecond))
}
