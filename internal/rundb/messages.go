package rundb

import "time"

// The composite types used for messages to the ClickHouse database.

// RunMessage is the information required to make an entry in the runs table.
type RunMessage struct {
	ID        string
	Hostname  string
	Version   string
	GoVersion string
	Port      string
	Identity  string
	Nevents   int
	Nsamples  int
	Timebase  float64
	Start     time.Time
	End       time.Time
}

// FileMessage is the information required to make an entry in the files table.
type FileMessage struct {
	RunID    string
	Filename string
	Filetype string
	Events   int
	Size     int64
	Created  time.Time
}
