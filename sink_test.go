package tekdaq

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestNewSinkSelectsFormat(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()

	tests := []struct {
		filename string
		wantRoot bool
	}{
		{"run.root", true},
		{"RUN.ROOT", true},
		{"run.txt", false},
		{"run.dat", false},
		{"run", false},
	}
	for _, tt := range tests {
		name := filepath.Join(dir, tt.filename)
		s, err := NewSink(name, cfg, "sim")
		if err != nil {
			t.Fatalf("NewSink(%q): %v", tt.filename, err)
		}
		_, isRoot := s.(*rootSink)
		if isRoot != tt.wantRoot {
			t.Errorf("NewSink(%q): root=%v, want %v", tt.filename, isRoot, tt.wantRoot)
		}
		if s.Filename() != name {
			t.Errorf("NewSink(%q): Filename=%q, want %q", tt.filename, s.Filename(), name)
		}
		if err := s.Close(); err != nil {
			t.Errorf("Close(%q): %v", tt.filename, err)
		}
	}
}

func TestSettingsLines(t *testing.T) {
	cfg := DefaultConfig()
	lines := strings.Join(cfg.settingsLines(), "\n")
	for _, want := range []string{
		"port /dev/ttyUSB0",
		"nevents 10",
		"recordlength 500",
		"trigger CH1 RISE at 1 V",
		"ch1 0.2 V/div DC MEG",
		"ch2 0.2 V/div DC MEG",
	} {
		if !strings.Contains(lines, want) {
			t.Errorf("settings lines missing %q:\n%s", want, lines)
		}
	}

	cfg.Keep = true
	lines = strings.Join(cfg.settingsLines(), "\n")
	if !strings.Contains(lines, "keep: instrument settings left untouched") {
		t.Errorf("keep run settings missing the keep marker:\n%s", lines)
	}
	if strings.Contains(lines, "trigger") {
		t.Errorf("keep run settings still describe the trigger:\n%s", lines)
	}
}
