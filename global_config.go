package tekdaq

import (
	"log"
	"os"
	"time"
)

// Portnumbers structs can contain all TCP port numbers used by tekdaq.
type Portnumbers struct {
	Waveforms int
	Summaries int
}

// Ports globally holds all TCP port numbers used by tekdaq.
var Ports Portnumbers

// SetPortnumbers assigns the publisher ports counting up from base.
func SetPortnumbers(base int) {
	Ports.Waveforms = base
	Ports.Summaries = base + 1
}

// BuildInfo can contain compile-time information about the build
type BuildInfo struct {
	Version string
	Githash string
	Gitdate string
	Date    string
	Summary string
	Host    string
}

// Build is a global holding compile-time information about the build
var Build = BuildInfo{
	Version: "0.3.0",
	Githash: "no git hash computed",
	Gitdate: "no git date computed",
	Date:    "no build date computed",
}

// StartTime is a global holding the time init() was run
var StartTime time.Time

// ProblemLogger will log warning messages to a file
var ProblemLogger *log.Logger

// UpdateLogger will log progress messages to a file
var UpdateLogger *log.Logger

func init() {
	SetPortnumbers(5520)
	StartTime = time.Now()

	// The main program overrides these, but at least initialize with
	// sensible values.
	ProblemLogger = log.New(os.Stderr, "", log.LstdFlags)
	UpdateLogger = log.New(os.Stderr, "", log.LstdFlags)
}
