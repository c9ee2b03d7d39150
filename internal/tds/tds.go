// Package tds drives Tektronix TDS3000-series oscilloscopes over RS-232 or
// a TCP bridge. It covers the surface a data-acquisition program needs:
// identification, front panel locking, channel and trigger setup, waveform
// preambles, binary curve transfer, and hardcopy grabs. A protocol-level
// simulator is included so everything above the transport can run without
// hardware.
package tds

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultReadTimeout bounds a single read while a response is being
	// collected. One second suits RS-232 rates from 9600 baud up.
	DefaultReadTimeout = 1 * time.Second

	// DefaultResponseTimeout bounds the wait for the first byte of a bulk
	// response (CURVE?, HARDCOPY START). Curve transfers at low baud rates
	// take tens of seconds to start after a slow trigger.
	DefaultResponseTimeout = 30 * time.Second
)

var identityRegexp = regexp.MustCompile(`^TEKTRONIX,TDS 3\d{3},`)

// ValidIdentity reports whether an *IDN? response names a TDS3000-series
// oscilloscope.
func ValidIdentity(id string) bool {
	return identityRegexp.MatchString(id)
}

// Device is one session with an oscilloscope. Methods are not safe for
// concurrent use; the instrument is a single request/response peer.
type Device struct {
	conn        Conn
	readTimeout time.Duration
	respTimeout time.Duration

	// Curve framing state, set by PrepareCurve and NumPoints.
	width  int
	points int
}

// New wraps an open connection in a Device. The caller keeps ownership of
// nothing; Close closes the connection.
func New(conn Conn) *Device {
	return &Device{
		conn:        conn,
		readTimeout: DefaultReadTimeout,
		respTimeout: DefaultResponseTimeout,
		width:       2,
	}
}

// SetReadTimeout changes the per-read timeout used when collecting
// responses.
func (d *Device) SetReadTimeout(t time.Duration) { d.readTimeout = t }

// SetResponseTimeout changes how long ReadResponse waits for the first byte
// of a bulk transfer.
func (d *Device) SetResponseTimeout(t time.Duration) { d.respTimeout = t }

// Close closes the underlying connection.
func (d *Device) Close() error { return d.conn.Close() }

// SendCommand sends one command without waiting for a response. The parts
// are joined with single spaces and terminated with a carriage return, so
// SendCommand("CH1:SCA", "200E-3") puts `CH1:SCA 200E-3\r` on the wire.
func (d *Device) SendCommand(parts ...string) error {
	cmd := strings.Join(parts, " ")
	if _, err := d.conn.Write([]byte(cmd + "\r")); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	return nil
}

// Query appends "?" to q, sends it, and returns one response line stripped
// of trailing whitespace. Header echo is turned off first so the response is
// the bare value.
func (d *Device) Query(q string) (string, error) {
	if err := d.HeadersOff(); err != nil {
		return "", err
	}
	if err := d.SendCommand(q + "?"); err != nil {
		return "", err
	}
	line, err := d.readLine()
	if err != nil {
		return "", fmt.Errorf("query %s?: %w", q, err)
	}
	return strings.TrimRight(line, " \t\r\n"), nil
}

// QueryQuoted is Query for settings the instrument reports as a quoted
// string, such as WFMPRE:XUNIT. The quotes are stripped; an unquoted
// response is an error.
func (d *Device) QueryQuoted(q string) (string, error) {
	resp, err := d.Query(q)
	if err != nil {
		return "", err
	}
	if len(resp) >= 2 && resp[0] == '"' && resp[len(resp)-1] == '"' {
		return resp[1 : len(resp)-1], nil
	}
	return "", fmt.Errorf("query %s?: expected a quoted string, got %q", q, resp)
}

// readLine collects bytes until a linefeed or until a read times out.
func (d *Device) readLine() (string, error) {
	if err := d.conn.SetReadTimeout(d.readTimeout); err != nil {
		return "", err
	}
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			return "", err
		}
		if n == 0 {
			if len(line) == 0 {
				return "", errors.New("no response before timeout")
			}
			return string(line), nil
		}
		line = append(line, buf[0])
		if buf[0] == '\n' {
			return string(line), nil
		}
	}
}

// ReadResponse collects a response of unknown length, such as a CURVE?
// payload or a hardcopy image. It waits up to the response timeout for the
// first byte, then keeps reading until the line goes quiet for one read
// timeout.
func (d *Device) ReadResponse() ([]byte, error) {
	if err := d.conn.SetReadTimeout(d.readTimeout); err != nil {
		return nil, err
	}
	var data []byte
	buf := make([]byte, 4096)
	deadline := time.Now().Add(d.respTimeout)
	for len(data) == 0 {
		n, err := d.conn.Read(buf)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			data = append(data, buf[:n]...)
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no response within %v", d.respTimeout)
		}
	}
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			return data, err
		}
		if n == 0 {
			return data, nil
		}
		data = append(data, buf[:n]...)
	}
}

// Identify returns the *IDN? response: manufacturer, model, serial number,
// and firmware versions.
func (d *Device) Identify() (string, error) {
	return d.Query("*IDN")
}

// SanityCheck reports whether the connected device identifies as a
// TDS3000-series oscilloscope.
func (d *Device) SanityCheck() (bool, error) {
	id, err := d.Identify()
	if err != nil {
		return false, err
	}
	return ValidIdentity(id), nil
}

// CheckIdentity is SanityCheck folded into an error, for callers that
// refuse to talk to unsupported instruments.
func (d *Device) CheckIdentity() error {
	id, err := d.Identify()
	if err != nil {
		return err
	}
	if !ValidIdentity(id) {
		return fmt.Errorf("device identifies as %q, want a TDS3000-series oscilloscope", id)
	}
	return nil
}

// HeadersOff disables header echo in query responses; most queries here
// assume it. HeadersOn restores the power-up behavior.
func (d *Device) HeadersOff() error { return d.SendCommand("HEADER", "OFF") }

// HeadersOn enables header echo in query responses.
func (d *Device) HeadersOn() error { return d.SendCommand("HEADER", "ON") }

// SetLocked locks (LOC ALL) or unlocks (LOC NONE) the front panel.
func (d *Device) SetLocked(locked bool) error {
	if locked {
		return d.SendCommand("LOC", "ALL")
	}
	return d.SendCommand("LOC", "NONE")
}

// SetAcquireState starts or stops acquisition, the RUN/STOP front panel
// function. In single-sequence mode starting arms one acquisition.
func (d *Device) SetAcquireState(run bool) error {
	if run {
		return d.SendCommand("ACQUIRE:STATE", "1")
	}
	return d.SendCommand("ACQUIRE:STATE", "0")
}

// AcquireState reports whether the device is acquiring. In single-sequence
// mode it drops back to false when the sequence completes.
func (d *Device) AcquireState() (bool, error) {
	resp, err := d.Query("ACQUIRE:STATE")
	if err != nil {
		return false, err
	}
	return matchSetting(resp, []string{"1", "on", "run"}, []string{"0", "off", "stop"})
}

// SetSingleSequence selects whether a started acquisition stops itself after
// one sequence (the front panel SINGLE SEQ button) or free-runs.
func (d *Device) SetSingleSequence(single bool) error {
	if single {
		return d.SendCommand("ACQUIRE:STOPAFTER", "SEQ")
	}
	return d.SendCommand("ACQUIRE:STOPAFTER", "RUNST")
}

// SingleSequence reports the ACQUIRE:STOPAFTER setting.
func (d *Device) SingleSequence() (bool, error) {
	resp, err := d.Query("ACQUIRE:STOPAFTER")
	if err != nil {
		return false, err
	}
	return matchSetting(resp, []string{"seq", "sequence"}, []string{"run", "runst", "runstop"})
}

// ForceTrigger forces a trigger if the device is in the ready state.
func (d *Device) ForceTrigger() error {
	return d.SendCommand("TRIGGER", "FORCE")
}

// SetTriggerAuto selects auto (untriggered roll) or normal trigger mode.
func (d *Device) SetTriggerAuto(auto bool) error {
	if auto {
		return d.SendCommand("TRIGGER:A:MODE", "auto")
	}
	return d.SendCommand("TRIGGER:A:MODE", "norm")
}

// TriggerAuto reports whether the A trigger is in auto mode.
func (d *Device) TriggerAuto() (bool, error) {
	resp, err := d.Query("TRIGGER:A:MODE")
	if err != nil {
		return false, err
	}
	return matchSetting(resp, []string{"auto"}, []string{"norm", "normal"})
}

// Trigger states reported by TriggerState.
const (
	TriggerStateAuto    = "auto"
	TriggerStateArmed   = "armed"
	TriggerStateReady   = "ready"
	TriggerStateSave    = "save"
	TriggerStateTrigger = "trigger"
)

var triggerStates = map[string]string{
	"auto":    TriggerStateAuto,
	"armed":   TriggerStateArmed,
	"ready":   TriggerStateReady,
	"save":    TriggerStateSave,
	"sav":     TriggerStateSave,
	"trigger": TriggerStateTrigger,
	"trig":    TriggerStateTrigger,
}

// TriggerState returns the device trigger state: auto, armed, ready, save,
// or trigger. Abbreviated responses are expanded; anything unrecognized is
// passed through as received.
func (d *Device) TriggerState() (string, error) {
	resp, err := d.Query("TRIGGER:STATE")
	if err != nil {
		return "", err
	}
	if state, ok := triggerStates[strings.ToLower(resp)]; ok {
		return state, nil
	}
	return resp, nil
}

// SetVerticalScale sets channel ch's vertical scale in volts per division.
// The value is passed through as given ("200E-3", "1.0E0", ...).
func (d *Device) SetVerticalScale(ch int, voltsPerDiv string) error {
	return d.SendCommand(fmt.Sprintf("CH%d:SCA", ch), voltsPerDiv)
}

// VerticalScale reads channel ch's vertical scale back.
func (d *Device) VerticalScale(ch int) (string, error) {
	return d.Query(fmt.Sprintf("CH%d:SCALE", ch))
}

// SetCoupling sets channel ch's input coupling, AC or DC.
func (d *Device) SetCoupling(ch int, coupling string) error {
	return d.SendCommand(fmt.Sprintf("CH%d:COUPL", ch), coupling)
}

// SetImpedance sets channel ch's input impedance: FIF (fifty ohm) or MEG.
func (d *Device) SetImpedance(ch int, impedance string) error {
	return d.SendCommand(fmt.Sprintf("CH%d:IMPED", ch), impedance)
}

// SelectChannel turns channel ch's display on or off. Only selected
// channels can be a curve source.
func (d *Device) SelectChannel(ch int, on bool) error {
	state := "ON"
	if !on {
		state = "OFF"
	}
	return d.SendCommand(fmt.Sprintf("SEL:CH%d", ch), state)
}

// SetTriggerLevel sets the A trigger level in volts.
func (d *Device) SetTriggerLevel(volts string) error {
	return d.SendCommand("TRIGGER:A:LEVEL", volts)
}

// SetTriggerSource routes the A edge trigger to CH1, CH2, or EXT.
func (d *Device) SetTriggerSource(source string) error {
	return d.SendCommand("TRIG:A:EDGE:SOU", source)
}

// SetTriggerSlope selects the triggering edge, RISE or FALL.
func (d *Device) SetTriggerSlope(slope string) error {
	return d.SendCommand("TRIG:A:EDGE:SLO", slope)
}

// SetHorizontalScale sets the time base in seconds per division.
func (d *Device) SetHorizontalScale(secPerDiv string) error {
	return d.SendCommand("HOR:SCA", secPerDiv)
}

// SetPretrigger positions the trigger within the record, as a percentage.
func (d *Device) SetPretrigger(percent string) error {
	return d.SendCommand("HOR:TRIG:POS", percent)
}

// SetRecordLength sets the number of points per waveform record. TDS3000
// scopes accept 500 and 10000.
func (d *Device) SetRecordLength(points int) error {
	return d.SendCommand("HOR:RECORDLENGTH", strconv.Itoa(points))
}

// HorizontalScale reads the time base back from the HORIZONTAL? summary,
// whose third semicolon-separated field is the main scale.
func (d *Device) HorizontalScale() (string, error) {
	resp, err := d.Query("HORIZONTAL")
	if err != nil {
		return "", err
	}
	fields := strings.Split(resp, ";")
	if len(fields) < 3 {
		return "", fmt.Errorf("unexpected HORIZONTAL? response %q", resp)
	}
	return fields[2], nil
}

// XUnits returns the horizontal axis units, typically "s" or "Hz".
func (d *Device) XUnits() (string, error) {
	return d.QueryQuoted("WFMPRE:XUNIT")
}

// YUnits returns the vertical axis units, typically "V".
func (d *Device) YUnits() (string, error) {
	return d.QueryQuoted("WFMPRE:YUNIT")
}

func matchSetting(resp string, on, off []string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(resp))
	for _, s := range on {
		if v == s {
			return true, nil
		}
	}
	for _, s := range off {
		if v == s {
			return false, nil
		}
	}
	return false, fmt.Errorf("unrecognized setting value %q", resp)
}
