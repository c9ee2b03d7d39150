package tekdaq

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings for one capture run. The flag-facing fields
// keep the instrument's vocabulary (RISE/FALL, AC/DC, FIF/MEG) so they can
// be sent on the wire unchanged.
type Config struct {
	Port    string
	Baud    int
	TCP     bool
	Sim     bool
	SimWave string

	Output  string
	NoSave  bool
	NEvents int

	Keep       bool
	Wave       string
	Length     string
	TrigSource string
	TrigLevel  float64
	TrigSlope  string
	VScale1    float64
	VScale2    float64
	Coupling1  string
	Coupling2  string
	Impedance1 string
	Impedance2 string
	HScale     float64
	Pretrigger float64

	PubPort int

	// Operational settings with no flag; the config file can override them.
	WaitTimeout time.Duration
	ReadTimeout time.Duration
}

// DefaultConfig returns the documented default settings.
func DefaultConfig() Config {
	return Config{
		Port:        "/dev/ttyUSB0",
		Baud:        38400,
		Output:      "tek.root",
		NEvents:     10,
		Wave:        "a",
		Length:      "5.E2",
		TrigSource:  "1",
		TrigLevel:   1.0,
		TrigSlope:   "RISE",
		VScale1:     200e-3,
		VScale2:     200e-3,
		Coupling1:   "DC",
		Coupling2:   "DC",
		Impedance1:  "MEG",
		Impedance2:  "MEG",
		HScale:      20e-9,
		Pretrigger:  20,
		WaitTimeout: 30 * time.Second,
		ReadTimeout: time.Second,
	}
}

// LoadConfig overlays the "acquisition" section of the config file onto the
// built-in defaults. Flags parsed afterwards overlay both.
func LoadConfig(v *viper.Viper) Config {
	cfg := DefaultConfig()
	if v == nil {
		return cfg
	}
	if err := v.UnmarshalKey("acquisition", &cfg); err != nil {
		ProblemLogger.Printf("Could not read acquisition settings from %s: %v", v.ConfigFileUsed(), err)
	}
	return cfg
}

// Validate checks every enumerated and numeric setting. The returned error
// names the offending flag and its allowed values.
func (c *Config) Validate() error {
	if c.NEvents < 1 {
		return fmt.Errorf("invalid --nevents %d: must be at least 1", c.NEvents)
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid --baudrate %d: must be positive", c.Baud)
	}
	switch c.Wave {
	case "a", "1", "2":
	default:
		return fmt.Errorf("invalid --wave %q: allowed values are a, 1 and 2", c.Wave)
	}
	switch c.Length {
	case "5.E2", "1.E4":
	default:
		return fmt.Errorf("invalid --length %q: allowed values are 5.E2 and 1.E4", c.Length)
	}
	switch c.TrigSource {
	case "0", "1", "2":
	default:
		return fmt.Errorf("invalid --trsrc %q: allowed values are 0 (EXT), 1 and 2", c.TrigSource)
	}
	switch c.TrigSlope {
	case "RISE", "FALL":
	default:
		return fmt.Errorf("invalid --trslope %q: allowed values are RISE and FALL", c.TrigSlope)
	}
	for _, ch := range []struct {
		flag  string
		value string
	}{
		{"--coupl1", c.Coupling1},
		{"--coupl2", c.Coupling2},
	} {
		switch ch.value {
		case "AC", "DC":
		default:
			return fmt.Errorf("invalid %s %q: allowed values are AC and DC", ch.flag, ch.value)
		}
	}
	for _, ch := range []struct {
		flag  string
		value string
	}{
		{"--imped1", c.Impedance1},
		{"--imped2", c.Impedance2},
	} {
		switch ch.value {
		case "FIF", "MEG":
		default:
			return fmt.Errorf("invalid %s %q: allowed values are FIF and MEG", ch.flag, ch.value)
		}
	}
	if c.VScale1 <= 0 {
		return fmt.Errorf("invalid --vsca1 %g: must be positive", c.VScale1)
	}
	if c.VScale2 <= 0 {
		return fmt.Errorf("invalid --vsca2 %g: must be positive", c.VScale2)
	}
	if c.HScale <= 0 {
		return fmt.Errorf("invalid --hsamp %g: must be positive", c.HScale)
	}
	if c.Pretrigger < 0 || c.Pretrigger > 100 {
		return fmt.Errorf("invalid --pretrigger %g: must be between 0 and 100 percent", c.Pretrigger)
	}
	if c.PubPort < 0 || c.PubPort > 65534 {
		return fmt.Errorf("invalid --pub %d: must be a TCP port (0 disables publishing)", c.PubPort)
	}
	return nil
}

// Channels returns the channel numbers enabled by the wave setting.
func (c *Config) Channels() []int {
	switch c.Wave {
	case "1":
		return []int{1}
	case "2":
		return []int{2}
	default:
		return []int{1, 2}
	}
}

// RecordLength returns the record length in samples, or 0 when the length
// setting is not one of the allowed values (Validate rejects those first).
func (c *Config) RecordLength() int {
	switch c.Length {
	case "5.E2":
		return 500
	case "1.E4":
		return 10000
	}
	return 0
}

// TriggerSource returns the trigger source in the instrument's vocabulary.
func (c *Config) TriggerSource() string {
	switch c.TrigSource {
	case "0":
		return "EXT"
	case "2":
		return "CH2"
	}
	return "CH1"
}

// VScale and Coupling and Impedance return the per-channel settings.
func (c *Config) VScale(ch int) float64 {
	if ch == 2 {
		return c.VScale2
	}
	return c.VScale1
}

func (c *Config) Coupling(ch int) string {
	if ch == 2 {
		return c.Coupling2
	}
	return c.Coupling1
}

func (c *Config) Impedance(ch int) string {
	if ch == 2 {
		return c.Impedance2
	}
	return c.Impedance1
}

// lastRun is the information stored under the "lastrun" config key after a
// completed run. It is informational and never read back as defaults.
type lastRun struct {
	When     string
	Output   string
	Events   int
	Settings Config
}

// SaveLastRun records the completed run in the config file.
func (c Config) SaveLastRun(v *viper.Viper, events int) error {
	if v == nil {
		return nil
	}
	v.Set("lastrun", lastRun{
		When:     time.Now().Format(time.RFC3339),
		Output:   c.Output,
		Events:   events,
		Settings: c,
	})
	return v.WriteConfig()
}
