package tds

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.bug.st/serial"
)

// Conn is the wire between a Device and an oscilloscope. Instrument
// responses carry no length framing beyond an optional trailing linebreak,
// so readers depend on the timeout semantics of serial ports: a Read past
// the deadline returns n == 0 and no error.
type Conn interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// OpenSerial opens an RS-232 connection to the instrument at 8N1.
func OpenSerial(device string, baud int) (Conn, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", device, err)
	}
	return port, nil
}

// OpenTCP connects to a serial-to-ethernet bridge or an AD007-style LAN
// adapter speaking raw SCPI on a TCP port. Read deadlines are mapped onto
// the serial timeout convention: a timed-out read reports zero bytes, not an
// error.
func OpenTCP(addr string, dialTimeout time.Duration) (Conn, error) {
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &tcpConn{conn: c}, nil
}

type tcpConn struct {
	conn    net.Conn
	timeout time.Duration
}

func (c *tcpConn) SetReadTimeout(t time.Duration) error {
	c.timeout = t
	return nil
}

func (c *tcpConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := c.conn.Read(p)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return n, nil
		}
	}
	return n, err
}

func (c *tcpConn) Write(p []byte) (int, error) { return c.conn.Write(p) }
func (c *tcpConn) Close() error                { return c.conn.Close() }
