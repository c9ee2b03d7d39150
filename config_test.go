package tekdaq

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	if cfg.Port != "/dev/ttyUSB0" {
		t.Errorf("Port=%q", cfg.Port)
	}
	if cfg.Baud != 38400 {
		t.Errorf("Baud=%d", cfg.Baud)
	}
	if cfg.Output != "tek.root" {
		t.Errorf("Output=%q", cfg.Output)
	}
	if cfg.NEvents != 10 {
		t.Errorf("NEvents=%d", cfg.NEvents)
	}
	if cfg.Wave != "a" || cfg.Length != "5.E2" || cfg.TrigSource != "1" {
		t.Errorf("Wave=%q Length=%q TrigSource=%q", cfg.Wave, cfg.Length, cfg.TrigSource)
	}
	if cfg.TrigLevel != 1.0 || cfg.TrigSlope != "RISE" {
		t.Errorf("TrigLevel=%g TrigSlope=%q", cfg.TrigLevel, cfg.TrigSlope)
	}
	if cfg.VScale1 != 200e-3 || cfg.VScale2 != 200e-3 {
		t.Errorf("VScale=%g/%g", cfg.VScale1, cfg.VScale2)
	}
	if cfg.Coupling1 != "DC" || cfg.Coupling2 != "DC" {
		t.Errorf("Coupling=%q/%q", cfg.Coupling1, cfg.Coupling2)
	}
	if cfg.Impedance1 != "MEG" || cfg.Impedance2 != "MEG" {
		t.Errorf("Impedance=%q/%q", cfg.Impedance1, cfg.Impedance2)
	}
	if cfg.HScale != 20e-9 {
		t.Errorf("HScale=%g", cfg.HScale)
	}
	if cfg.Pretrigger != 20 {
		t.Errorf("Pretrigger=%g", cfg.Pretrigger)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"length", func(c *Config) { c.Length = "2.E3" }, "--length"},
		{"coupl1", func(c *Config) { c.Coupling1 = "GND" }, "--coupl1"},
		{"coupl2", func(c *Config) { c.Coupling2 = "ac" }, "--coupl2"},
		{"imped1", func(c *Config) { c.Impedance1 = "50" }, "--imped1"},
		{"imped2", func(c *Config) { c.Impedance2 = "HIZ" }, "--imped2"},
		{"wave", func(c *Config) { c.Wave = "3" }, "--wave"},
		{"trsrc", func(c *Config) { c.TrigSource = "EXT" }, "--trsrc"},
		{"trslope", func(c *Config) { c.TrigSlope = "EITHER" }, "--trslope"},
		{"nevents", func(c *Config) { c.NEvents = 0 }, "--nevents"},
		{"baud", func(c *Config) { c.Baud = 0 }, "--baudrate"},
		{"vsca1", func(c *Config) { c.VScale1 = -0.2 }, "--vsca1"},
		{"vsca2", func(c *Config) { c.VScale2 = 0 }, "--vsca2"},
		{"hsamp", func(c *Config) { c.HScale = 0 }, "--hsamp"},
		{"pretrigger", func(c *Config) { c.Pretrigger = 120 }, "--pretrigger"},
		{"pub", func(c *Config) { c.PubPort = -1 }, "--pub"},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: invalid config validated", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantSub) {
			t.Errorf("%s: error %q does not name %s", tc.name, err, tc.wantSub)
		}
	}
}

func TestChannelMappings(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Wave = "a"
	if got := cfg.Channels(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Channels(a)=%v", got)
	}
	cfg.Wave = "1"
	if got := cfg.Channels(); len(got) != 1 || got[0] != 1 {
		t.Errorf("Channels(1)=%v", got)
	}
	cfg.Wave = "2"
	if got := cfg.Channels(); len(got) != 1 || got[0] != 2 {
		t.Errorf("Channels(2)=%v", got)
	}

	cfg.Length = "5.E2"
	if got := cfg.RecordLength(); got != 500 {
		t.Errorf("RecordLength(5.E2)=%d", got)
	}
	cfg.Length = "1.E4"
	if got := cfg.RecordLength(); got != 10000 {
		t.Errorf("RecordLength(1.E4)=%d", got)
	}

	for src, want := range map[string]string{"0": "EXT", "1": "CH1", "2": "CH2"} {
		cfg.TrigSource = src
		if got := cfg.TriggerSource(); got != want {
			t.Errorf("TriggerSource(%s)=%q, want %q", src, got, want)
		}
	}
}

func TestPerChannelAccessors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VScale1, cfg.VScale2 = 0.1, 2.0
	cfg.Coupling1, cfg.Coupling2 = "AC", "DC"
	cfg.Impedance1, cfg.Impedance2 = "FIF", "MEG"

	if cfg.VScale(1) != 0.1 || cfg.VScale(2) != 2.0 {
		t.Errorf("VScale=%g/%g", cfg.VScale(1), cfg.VScale(2))
	}
	if cfg.Coupling(1) != "AC" || cfg.Coupling(2) != "DC" {
		t.Errorf("Coupling=%q/%q", cfg.Coupling(1), cfg.Coupling(2))
	}
	if cfg.Impedance(1) != "FIF" || cfg.Impedance(2) != "MEG" {
		t.Errorf("Impedance=%q/%q", cfg.Impedance(1), cfg.Impedance(2))
	}
}

func TestLoadConfigOverlay(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "acquisition:\n" +
		"  nevents: 25\n" +
		"  wave: \"2\"\n" +
		"  trigslope: FALL\n" +
		"  waittimeout: 5s\n"
	if err := os.WriteFile(fname, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	v := viper.New()
	v.SetConfigFile(fname)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig: %v", err)
	}

	cfg := LoadConfig(v)
	if cfg.NEvents != 25 {
		t.Errorf("NEvents=%d, want 25", cfg.NEvents)
	}
	if cfg.Wave != "2" {
		t.Errorf("Wave=%q, want 2", cfg.Wave)
	}
	if cfg.TrigSlope != "FALL" {
		t.Errorf("TrigSlope=%q, want FALL", cfg.TrigSlope)
	}
	if cfg.WaitTimeout != 5*time.Second {
		t.Errorf("WaitTimeout=%v, want 5s", cfg.WaitTimeout)
	}
	// Everything absent from the file keeps its default.
	if cfg.Port != "/dev/ttyUSB0" || cfg.Baud != 38400 || cfg.Length != "5.E2" {
		t.Errorf("defaults disturbed: Port=%q Baud=%d Length=%q", cfg.Port, cfg.Baud, cfg.Length)
	}
}

func TestLoadConfigNilViper(t *testing.T) {
	cfg := LoadConfig(nil)
	if cfg != DefaultConfig() {
		t.Error("nil viper should yield the defaults")
	}
}

func TestSaveLastRun(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "config.yaml")
	v := viper.New()
	v.SetConfigFile(fname)

	cfg := DefaultConfig()
	cfg.Output = "night.root"
	if err := cfg.SaveLastRun(v, 7); err != nil {
		t.Fatalf("SaveLastRun: %v", err)
	}

	v2 := viper.New()
	v2.SetConfigFile(fname)
	if err := v2.ReadInConfig(); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got := v2.GetInt("lastrun.events"); got != 7 {
		t.Errorf("lastrun.events=%d, want 7", got)
	}
	if got := v2.GetString("lastrun.output"); got != "night.root" {
		t.Errorf("lastrun.output=%q", got)
	}
	if got := v2.GetString("lastrun.settings.wave"); got != "a" {
		t.Errorf("lastrun.settings.wave=%q", got)
	}
	if v2.GetString("lastrun.when") == "" {
		t.Error("lastrun.when is empty")
	}
}
