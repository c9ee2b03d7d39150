// Package rundb records capture runs and their output files in a ClickHouse
// database. The connection is optional: when the TEKDAQ_CLICKHOUSE_HOST
// environment variable is unset, every operation is a no-op and captures
// proceed without a database.
package rundb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/oklog/ulid/v2"
)

const databaseName = "tekdaq" // official SQL name of the database

const timeLayout = "2006-01-02 15:04:05.000000"

// Connection wraps one ClickHouse client plus the channels that serialize
// inserts through a single handler goroutine.
type Connection struct {
	conn    clickhouse.Conn
	err     error
	runmsg  chan *RunMessage
	filemsg chan *FileMessage
	sync.WaitGroup
}

// NewRunID returns a fresh ULID to identify one capture run.
func NewRunID() string {
	return ulid.Make().String()
}

func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// PingServer checks that the configured ClickHouse server answers.
func PingServer() error {
	db := connect()
	if !db.IsConnected() {
		if db.err != nil {
			return db.err
		}
		return fmt.Errorf("database is not connected")
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	db.conn.Close()
	return nil
}

// Start opens the database connection and launches the handler goroutine,
// which runs until abort is closed. The returned Connection is usable even
// when the server is unreachable or unconfigured; it simply records nothing.
func Start(abort <-chan struct{}) *Connection {
	db := connect()
	db.Add(1)
	go db.handle(abort)
	return db
}

func connect() *Connection {
	db := &Connection{}
	host := os.Getenv("TEKDAQ_CLICKHOUSE_HOST")
	if host == "" {
		db.err = fmt.Errorf("TEKDAQ_CLICKHOUSE_HOST is not set")
		return db
	}
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: os.Getenv("TEKDAQ_CLICKHOUSE_USERNAME"),
		Password: os.Getenv("TEKDAQ_CLICKHOUSE_PASSWORD"),
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "tekdaq", Version: "unknown"},
		},
	}
	opt := clickhouse.Options{
		Addr:       []string{host},
		Auth:       auth,
		ClientInfo: client,
		TLS:        nil,
	}
	ctx := context.Background()
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	db.conn = conn

	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			fmt.Printf("Exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}

	db.runmsg = make(chan *RunMessage)
	db.filemsg = make(chan *FileMessage)
	return db
}

// handle serializes all inserts. When the connection failed, the message
// channels are nil and only abort can fire.
func (db *Connection) handle(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			if db.conn != nil {
				db.conn.Close()
			}
			return
		case rmsg := <-db.runmsg:
			db.insertRun(rmsg)
		case fmsg := <-db.filemsg:
			db.insertFile(fmsg)
		}
	}
}

// RecordRun stores a run entry in the DB (if it's open).
// This function blocks until the handler goroutine accepts the message, so
// that the run row exists before any corresponding RecordFile entries.
func (db *Connection) RecordRun(msg *RunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.runmsg <- msg
}

// FinishRun re-inserts the run entry with its end time filled in. The runs
// table is a ReplacingMergeTree keyed on the run ID, so the later row wins.
func (db *Connection) FinishRun(msg *RunMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	msg.End = time.Now()
	go func() { db.runmsg <- msg }()
}

// RecordFile stores a file entry in the DB (if it's open).
func (db *Connection) RecordFile(msg *FileMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	go func() { db.filemsg <- msg }()
}

func (db *Connection) insertRun(m *RunMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	formattedStart := m.Start.Format(timeLayout)
	formattedEnd := m.End.Format(timeLayout)
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, m.Hostname, m.Version, m.GoVersion, m.Port, m.Identity,
		m.Nevents, m.Nsamples, m.Timebase, formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into runs ", err)
		db.err = err
	}
}

func (db *Connection) insertFile(m *FileMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	formattedCreated := m.Created.Format(timeLayout)
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO files VALUES (?, ?, ?, ?, ?, ?)`, nowait,
		m.RunID, m.Filename, m.Filetype, m.Events, m.Size, formattedCreated,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into files ", err)
		db.err = err
	}
}
