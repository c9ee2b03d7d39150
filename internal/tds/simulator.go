package tds

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// SimConfig tunes the simulated oscilloscope.
type SimConfig struct {
	Model     string     // reported by *IDN?; default "TDS 3052"
	Amplitude float64    // synthetic pulse amplitude in volts; default 0.5
	Noise     float64    // gaussian noise sigma in volts; default 2 mV
	Replay    *mat.Dense // optional waveform matrix; row i is served as event i's volts
	Seed      int64
}

// Simulator behaves like a TDS3000-series oscilloscope at the protocol
// level. It implements Conn: commands written to it update internal state,
// responses are buffered and read back with serial timeout semantics (an
// empty buffer reads as zero bytes). Each armed single sequence serves a
// fresh synthetic pulse, or the next row of the replay matrix.
type Simulator struct {
	cfg SimConfig

	mu       sync.Mutex
	partial  []byte
	out      bytes.Buffer
	rng      *rand.Rand
	commands []string

	headers   bool
	locked    bool
	acquiring bool
	single    bool
	trigAuto  bool
	armCount  int
	highPolls int // ACQUIRE:STATE? polls that still see the sequence running

	recordLength int
	hscale       float64
	pretrigger   float64
	vscale       [2]float64
	coupling     [2]string
	impedance    [2]string
	selected     [2]bool
	trigLevel    string
	trigSource   string
	trigSlope    string

	dataSource int
	dataWidth  int
	hcFormat   string
	hcLayout   string
	hcInksaver string
}

// NewSimulator returns a simulated oscilloscope in its power-up state:
// headers on, channel 1 selected, free-running acquisition.
func NewSimulator(cfg SimConfig) *Simulator {
	if cfg.Model == "" {
		cfg.Model = "TDS 3052"
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 0.5
	}
	if cfg.Noise == 0 {
		cfg.Noise = 2e-3
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:          cfg,
		rng:          rand.New(rand.NewSource(seed)),
		headers:      true,
		acquiring:    true,
		recordLength: 500,
		hscale:       4e-6,
		pretrigger:   50,
		vscale:       [2]float64{0.1, 0.1},
		coupling:     [2]string{"DC", "DC"},
		impedance:    [2]string{"MEG", "MEG"},
		selected:     [2]bool{true, false},
		trigLevel:    "0.0E0",
		trigSource:   "CH1",
		trigSlope:    "RISE",
		dataSource:   1,
		dataWidth:    1,
		hcFormat:     "RLE",
		hcLayout:     "portrait",
		hcInksaver:   "on",
	}
}

// Commands returns a copy of every command line received so far, in order.
// Tests use it to assert on the exact traffic a caller generates.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Locked reports the front panel lock state.
func (s *Simulator) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Arms returns how many single sequences have been armed.
func (s *Simulator) Arms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armCount
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partial = append(s.partial, p...)
	for {
		idx := bytes.IndexAny(s.partial, "\r\n")
		if idx < 0 {
			return len(p), nil
		}
		line := strings.TrimSpace(string(s.partial[:idx]))
		s.partial = s.partial[idx+1:]
		if line != "" {
			s.commands = append(s.commands, line)
			s.handle(line)
		}
	}
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.out.Len() == 0 {
		s.mu.Unlock()
		// A real port would block until its timeout here.
		time.Sleep(500 * time.Microsecond)
		return 0, nil
	}
	defer s.mu.Unlock()
	return s.out.Read(p)
}

func (s *Simulator) Close() error { return nil }

func (s *Simulator) SetReadTimeout(t time.Duration) error { return nil }

func (s *Simulator) handle(line string) {
	if strings.HasSuffix(line, "?") {
		s.reply(strings.TrimSuffix(line, "?"))
		return
	}
	name, arg := line, ""
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		name, arg = line[:idx], strings.TrimSpace(line[idx+1:])
	}
	s.apply(strings.ToUpper(name), arg)
}

func (s *Simulator) apply(name, arg string) {
	switch name {
	case "HEADER", "HEADER:STATE":
		s.headers = isSCPITrue(arg)
	case "LOC", "LOCK":
		s.locked = strings.EqualFold(arg, "ALL")
	case "ACQUIRE:STATE", "ACQ:STATE":
		s.acquiring = isSCPITrue(arg)
		if s.acquiring && s.single {
			s.armCount++
			s.highPolls = 1
		}
	case "ACQUIRE:STOPAFTER", "ACQ:STOPA", "ACQ:STOPAFTER":
		s.single = strings.HasPrefix(strings.ToUpper(arg), "SEQ")
	case "TRIGGER", "TRIG":
		// TRIGGER FORCE on a stopped single sequence has no visible
		// effect here; the next curve is already prepared.
	case "TRIGGER:A:MODE", "TRIG:A:MODE":
		s.trigAuto = strings.EqualFold(arg, "auto")
	case "TRIGGER:A:LEVEL", "TRIG:A:LEVEL":
		s.trigLevel = arg
	case "TRIGGER:A:EDGE:SOU", "TRIG:A:EDGE:SOU", "TRIGGER:A:EDGE:SOURCE":
		s.trigSource = strings.ToUpper(arg)
	case "TRIGGER:A:EDGE:SLO", "TRIG:A:EDGE:SLO", "TRIGGER:A:EDGE:SLOPE":
		s.trigSlope = strings.ToUpper(arg)
	case "HOR:SCA", "HOR:SCALE", "HORIZONTAL:SCALE":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			s.hscale = v
		}
	case "HOR:TRIG:POS", "HORIZONTAL:TRIGGER:POSITION":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			s.pretrigger = v
		}
	case "HOR:RECORDLENGTH", "HORIZONTAL:RECORDLENGTH":
		if v, err := strconv.Atoi(arg); err == nil {
			s.recordLength = v
		}
	case "DATA:SOURCE":
		if ch, ok := channelNumber(arg); ok {
			s.dataSource = ch
		}
	case "DATA:WIDTH":
		if v, err := strconv.Atoi(arg); err == nil && (v == 1 || v == 2) {
			s.dataWidth = v
		}
	case "DATA:ENCDG", "WFMPRE:PT_FMT":
		// Only RPBinary / Y are generated; accept and ignore.
	case "HARDCOPY":
		if strings.EqualFold(arg, "START") {
			s.out.Write(s.hardcopyImage())
		}
	case "HARDCOPY:FORMAT":
		s.hcFormat = arg
	case "HARDCOPY:LAYOUT":
		s.hcLayout = strings.ToLower(arg)
	case "HARDCOPY:INKSAVER":
		s.hcInksaver = strings.ToLower(arg)
	case "HARDCOPY:PORT":
		// RS232 is the only port here.
	default:
		if ch, field, ok := channelSetting(name); ok {
			s.applyChannel(ch, field, arg)
		}
	}
}

func (s *Simulator) applyChannel(ch int, field, arg string) {
	i := ch - 1
	switch field {
	case "SCA", "SCALE":
		if v, err := strconv.ParseFloat(arg, 64); err == nil {
			s.vscale[i] = v
		}
	case "COUPL", "COUPLING":
		s.coupling[i] = strings.ToUpper(arg)
	case "IMPED", "IMPEDANCE":
		s.impedance[i] = strings.ToUpper(arg)
	case "SEL":
		s.selected[i] = isSCPITrue(arg)
	}
}

func (s *Simulator) reply(query string) {
	q := strings.ToUpper(strings.TrimSpace(query))
	var resp string
	switch q {
	case "*IDN":
		resp = fmt.Sprintf("TEKTRONIX,%s,0,CF:91.1CT FV:v3.27 TDS3GM:v1.00 TDS3FFT:v1.00 TDS3TRG:v1.00", s.cfg.Model)
	case "ACQUIRE:STATE", "ACQ:STATE":
		running := s.acquiring
		if running && s.single {
			if s.highPolls > 0 {
				s.highPolls--
			} else {
				s.acquiring = false
				running = false
			}
		}
		resp = "0"
		if running {
			resp = "1"
		}
	case "ACQUIRE:STOPAFTER", "ACQ:STOPA", "ACQ:STOPAFTER":
		resp = "RUNST"
		if s.single {
			resp = "SEQ"
		}
	case "TRIGGER:STATE", "TRIG:STATE":
		switch {
		case s.trigAuto:
			resp = "AUTO"
		case s.acquiring:
			resp = "TRIG"
		default:
			resp = "SAV"
		}
	case "TRIGGER:A:MODE", "TRIG:A:MODE":
		resp = "NORM"
		if s.trigAuto {
			resp = "AUTO"
		}
	case "TRIGGER:A:LEVEL", "TRIG:A:LEVEL":
		resp = s.trigLevel
	case "HORIZONTAL", "HOR":
		resp = fmt.Sprintf("%d;%s;%s;0", s.recordLength, formatE(s.pretrigger), formatE(s.hscale))
	case "WFMPRE":
		resp = s.preambleString()
	case "WFMPRE:NR_PT":
		resp = strconv.Itoa(s.recordLength)
	case "WFMPRE:XUNIT":
		resp = `"s"`
	case "WFMPRE:YUNIT":
		resp = `"V"`
	case "HARDCOPY:FORMAT":
		resp = s.hcFormat
	case "CURVE", "CURV":
		s.out.Write(s.curveBlock())
		return
	default:
		if ch, field, ok := channelSetting(q); ok {
			resp = s.channelReply(ch, field)
		} else {
			resp = "0"
		}
	}
	if s.headers {
		resp = ":" + q + " " + resp
	}
	s.out.WriteString(resp + "\n")
}

func (s *Simulator) channelReply(ch int, field string) string {
	i := ch - 1
	switch field {
	case "SCA", "SCALE":
		return formatE(s.vscale[i])
	case "COUPL", "COUPLING":
		return s.coupling[i]
	case "IMPED", "IMPEDANCE":
		return s.impedance[i]
	case "SEL":
		if s.selected[i] {
			return "1"
		}
		return "0"
	}
	return "0"
}

// preamble reports the transfer parameters the simulator itself uses when
// generating curves, mirroring what a TDS3000 derives from its settings:
// ten divisions across the screen, a hair over ten (10.24) vertically so
// full code range overshoots the graticule by one division each way.
func (s *Simulator) preamble() *Preamble {
	ch := s.dataSource
	n := s.recordLength
	xincr := s.hscale * 10 / float64(n)
	full := 256.0
	if s.dataWidth == 2 {
		full = 65536.0
	}
	vdiv := s.vscale[ch-1]
	return &Preamble{
		BytesPerSample: s.dataWidth,
		BitsPerSample:  8 * s.dataWidth,
		Encoding:       "BIN",
		BinaryFormat:   "RP",
		ByteOrder:      "MSB",
		NumberOfPoints: n,
		WaveformID: fmt.Sprintf("Ch%d, %s coupling, %s V/div, %s s/div, %d points, Sample mode",
			ch, s.coupling[ch-1], formatE(vdiv), formatE(s.hscale), n),
		PointFormat: "Y",
		XIncr:       xincr,
		PtOffset:    0,
		XZero:       -s.pretrigger / 100 * float64(n) * xincr,
		XUnits:      "s",
		YScale:      vdiv * 10.24 / full,
		YZero:       0,
		YOffset:     full / 2,
		YUnit:       "V",
	}
}

func (s *Simulator) preambleString() string {
	p := s.preamble()
	fields := []string{
		strconv.Itoa(p.BytesPerSample),
		strconv.Itoa(p.BitsPerSample),
		p.Encoding,
		p.BinaryFormat,
		p.ByteOrder,
		strconv.Itoa(p.NumberOfPoints),
		`"` + p.WaveformID + `"`,
		p.PointFormat,
		formatE(p.XIncr),
		strconv.Itoa(p.PtOffset),
		formatE(p.XZero),
		`"` + p.XUnits + `"`,
		formatE(p.YScale),
		formatE(p.YZero),
		formatE(p.YOffset),
		`"` + p.YUnit + `"`,
	}
	return strings.Join(fields, ";")
}

// curveBlock builds a CURVE? response: IEEE 488.2 definite-length block
// header, big-endian samples, trailing linefeed.
func (s *Simulator) curveBlock() []byte {
	p := s.preamble()
	volts := s.eventVolts(p.NumberOfPoints)
	payload := make([]byte, 0, s.dataWidth*len(volts))
	for _, v := range volts {
		code := p.RawFromVolts(v, s.dataWidth)
		if s.dataWidth == 2 {
			payload = append(payload, byte(code>>8), byte(code))
		} else {
			payload = append(payload, byte(code))
		}
	}
	digits := strconv.Itoa(len(payload))
	block := make([]byte, 0, len(payload)+len(digits)+3)
	block = append(block, '#')
	block = append(block, byte('0'+len(digits)))
	block = append(block, digits...)
	block = append(block, payload...)
	block = append(block, '\n')
	return block
}

// eventVolts produces the voltage trace for the current event: a replayed
// matrix row when one is configured, otherwise a noisy synthetic pulse
// starting at the trigger position. Channel 2 sees the pulse inverted and
// scaled so the two traces are distinguishable.
func (s *Simulator) eventVolts(n int) []float64 {
	event := s.armCount
	if event > 0 {
		event--
	}
	if s.cfg.Replay != nil {
		rows, cols := s.cfg.Replay.Dims()
		row := event % rows
		out := make([]float64, n)
		for i := range out {
			j := i
			if j >= cols {
				j = cols - 1
			}
			out[i] = s.cfg.Replay.At(row, j)
		}
		return out
	}

	amp := s.cfg.Amplitude
	if s.dataSource == 2 {
		amp = -0.6 * amp
	}
	trigIdx := s.pretrigger / 100 * float64(n)
	fall := float64(n) / 8
	rise := float64(n) / 40
	// Peak of exp(-t/fall)-exp(-t/rise) for normalization to amp.
	tpeak := math.Log(fall/rise) * fall * rise / (fall - rise)
	peak := math.Exp(-tpeak/fall) - math.Exp(-tpeak/rise)

	out := make([]float64, n)
	for i := range out {
		v := s.rng.NormFloat64() * s.cfg.Noise
		if t := float64(i) - trigIdx; t >= 0 {
			v += amp * (math.Exp(-t/fall) - math.Exp(-t/rise)) / peak
		}
		out[i] = v
	}
	return out
}

// hardcopyImage fabricates a tiny BMP-shaped payload for HARDCOPY START.
func (s *Simulator) hardcopyImage() []byte {
	img := make([]byte, 62)
	img[0], img[1] = 'B', 'M'
	img[2] = byte(len(img))
	for i := 14; i < len(img); i++ {
		img[i] = byte(i)
	}
	return img
}

func isSCPITrue(arg string) bool {
	switch strings.ToUpper(arg) {
	case "1", "ON", "RUN", "ALL":
		return true
	}
	return false
}

func channelNumber(arg string) (int, bool) {
	a := strings.ToUpper(strings.TrimSpace(arg))
	if strings.HasPrefix(a, "CH") {
		if n, err := strconv.Atoi(a[2:]); err == nil && n >= 1 && n <= 2 {
			return n, true
		}
	}
	return 0, false
}

// channelSetting decomposes names like CH1:SCA and SEL:CH2 into the channel
// number and the setting field.
func channelSetting(name string) (ch int, field string, ok bool) {
	if strings.HasPrefix(name, "CH") && len(name) > 3 && name[3] == ':' {
		if n, err := strconv.Atoi(name[2:3]); err == nil && n >= 1 && n <= 2 {
			return n, name[4:], true
		}
	}
	if strings.HasPrefix(name, "SEL:CH") || strings.HasPrefix(name, "SELECT:CH") {
		tail := name[strings.Index(name, ":CH")+3:]
		if n, err := strconv.Atoi(tail); err == nil && n >= 1 && n <= 2 {
			return n, "SEL", true
		}
	}
	return 0, "", false
}

func formatE(v float64) string {
	return strconv.FormatFloat(v, 'E', 4, 64)
}
