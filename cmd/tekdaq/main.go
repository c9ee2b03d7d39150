package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/davecgh/go-spew/spew"
	tekdaq "github.com/samdejong86/tektronix-serial-daq"
	"github.com/samdejong86/tektronix-serial-daq/internal/rundb"
	"github.com/samdejong86/tektronix-serial-daq/internal/tds"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		err2 := os.MkdirAll(dir, 0775)
		if err2 != nil {
			return "", err2
		}
	}

	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find
// config files and the filename and suffix. The config file overlays the
// built-in defaults; explicit flags overlay both.
func setupViper() error {
	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotTekdaq := filepath.Join(HOME, ".tekdaq")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotTekdaq, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(dotTekdaq)
	viper.AddConfigPath(filepath.FromSlash("/etc/tekdaq"))
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

// startLoggers points the package loggers at a rotating log file. Problems
// are mirrored to stderr; progress goes to the file only.
func startLoggers(logname string) {
	rotator := &lumberjack.Logger{
		Filename:   logname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	}
	tekdaq.UpdateLogger = log.New(rotator, "", log.LstdFlags)
	tekdaq.ProblemLogger = log.New(io.MultiWriter(os.Stderr, rotator), "", log.LstdFlags)
}

// openConn picks the transport: the built-in simulator, a TCP bridge, or the
// serial port.
func openConn(cfg tekdaq.Config) (tds.Conn, error) {
	switch {
	case cfg.Sim:
		simcfg := tds.SimConfig{}
		if cfg.SimWave != "" {
			m, err := tds.ReadReplayMatrix(cfg.SimWave)
			if err != nil {
				return nil, err
			}
			simcfg.Replay = m
		}
		return tds.NewSimulator(simcfg), nil
	case cfg.TCP:
		return tds.OpenTCP(cfg.Port, 5*time.Second)
	default:
		return tds.OpenSerial(cfg.Port, cfg.Baud)
	}
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	tekdaq.Build.Date = buildDate
	tekdaq.Build.Githash = githash
	tekdaq.Build.Gitdate = gitdate
	tekdaq.Build.Summary = fmt.Sprintf("tekdaq version %s (git commit %s of %s)", tekdaq.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		tekdaq.Build.Host = host
	} else {
		tekdaq.Build.Host = "host not detected"
	}

	// Find the config file, creating it if needed, and read it. It has to be
	// read before flag registration so its values become the flag defaults.
	if err := setupViper(); err != nil {
		panic(err)
	}
	cfg := tekdaq.LoadConfig(viper.GetViper())

	flag.StringVar(&cfg.Port, "p", cfg.Port, "serial device, or host:port with --tcp")
	flag.StringVar(&cfg.Port, "port", cfg.Port, "serial device, or host:port with --tcp")
	flag.IntVar(&cfg.Baud, "r", cfg.Baud, "serial baud rate")
	flag.IntVar(&cfg.Baud, "baudrate", cfg.Baud, "serial baud rate")
	flag.StringVar(&cfg.Output, "o", cfg.Output, "output file; .root selects the ROOT format, anything else text")
	flag.StringVar(&cfg.Output, "output", cfg.Output, "output file; .root selects the ROOT format, anything else text")
	flag.IntVar(&cfg.NEvents, "n", cfg.NEvents, "number of events to record")
	flag.IntVar(&cfg.NEvents, "nevents", cfg.NEvents, "number of events to record")
	flag.BoolVar(&cfg.Keep, "k", cfg.Keep, "keep the scope's current settings, ignoring the configuration flags")
	flag.BoolVar(&cfg.Keep, "keep", cfg.Keep, "keep the scope's current settings, ignoring the configuration flags")
	flag.StringVar(&cfg.Wave, "w", cfg.Wave, "channel to record: 1, 2, or a for all")
	flag.StringVar(&cfg.Wave, "wave", cfg.Wave, "channel to record: 1, 2, or a for all")
	flag.StringVar(&cfg.Length, "l", cfg.Length, "record length: 5.E2 or 1.E4")
	flag.StringVar(&cfg.Length, "length", cfg.Length, "record length: 5.E2 or 1.E4")
	flag.StringVar(&cfg.TrigSource, "c", cfg.TrigSource, "trigger channel: 1, 2, or 0 for EXT")
	flag.StringVar(&cfg.TrigSource, "trsrc", cfg.TrigSource, "trigger channel: 1, 2, or 0 for EXT")
	flag.Float64Var(&cfg.TrigLevel, "t", cfg.TrigLevel, "trigger level in volts")
	flag.Float64Var(&cfg.TrigLevel, "trlevel", cfg.TrigLevel, "trigger level in volts")
	flag.StringVar(&cfg.TrigSlope, "s", cfg.TrigSlope, "trigger slope: RISE or FALL")
	flag.StringVar(&cfg.TrigSlope, "trslope", cfg.TrigSlope, "trigger slope: RISE or FALL")
	flag.Float64Var(&cfg.VScale1, "vsca1", cfg.VScale1, "channel 1 vertical scale in volts/div")
	flag.Float64Var(&cfg.VScale2, "vsca2", cfg.VScale2, "channel 2 vertical scale in volts/div")
	flag.StringVar(&cfg.Coupling1, "coupl1", cfg.Coupling1, "channel 1 coupling: AC or DC")
	flag.StringVar(&cfg.Coupling2, "coupl2", cfg.Coupling2, "channel 2 coupling: AC or DC")
	flag.StringVar(&cfg.Impedance1, "imped1", cfg.Impedance1, "channel 1 impedance: FIF or MEG")
	flag.StringVar(&cfg.Impedance2, "imped2", cfg.Impedance2, "channel 2 impedance: FIF or MEG")
	flag.Float64Var(&cfg.HScale, "b", cfg.HScale, "horizontal scale in seconds/div")
	flag.Float64Var(&cfg.HScale, "hsamp", cfg.HScale, "horizontal scale in seconds/div")
	flag.Float64Var(&cfg.Pretrigger, "pt", cfg.Pretrigger, "pretrigger in percent of the record")
	flag.Float64Var(&cfg.Pretrigger, "pretrigger", cfg.Pretrigger, "pretrigger in percent of the record")
	flag.BoolVar(&cfg.NoSave, "nosave", cfg.NoSave, "do not write an output file")
	flag.BoolVar(&cfg.TCP, "tcp", cfg.TCP, "interpret --port as a host:port TCP address")
	flag.BoolVar(&cfg.Sim, "sim", cfg.Sim, "acquire from a built-in simulated oscilloscope")
	flag.StringVar(&cfg.SimWave, "simwave", cfg.SimWave, "with --sim, replay waveforms from this NumPy .npy matrix")
	flag.IntVar(&cfg.PubPort, "pub", cfg.PubPort, "publish waveforms and summaries on this ZMQ port pair (0 = off)")
	unlock := flag.Bool("u", false, "unlock the front panel, then exit")
	flag.BoolVar(unlock, "unlock", false, "unlock the front panel, then exit")
	printVersion := flag.Bool("version", false, "print version and quit")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is tekdaq version %s\n", tekdaq.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	banner := fmt.Sprintf("This is tekdaq version %s (git commit %s)\n", tekdaq.Build.Version, githash)
	fmt.Print(banner)

	// Start logging problems and progress to a rotating log file.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logname, err := makeFileExist(filepath.Join(HOME, ".tekdaq", "logs"), "tekdaq.log")
	if err != nil {
		panic(err)
	}
	startLoggers(logname)
	fmt.Printf("Logging to %s\n", logname)
	tekdaq.UpdateLogger.Printf("\n\n\n\n%s", banner)
	tekdaq.UpdateLogger.Printf("Effective config: %s", spew.Sdump(cfg))

	conn, err := openConn(cfg)
	if err != nil {
		tekdaq.ProblemLogger.Printf("Could not open the instrument: %v", err)
		os.Exit(1)
	}
	dev := tds.New(conn)

	if *unlock {
		if err := dev.SetLocked(false); err != nil {
			tekdaq.ProblemLogger.Printf("Could not unlock the front panel: %v", err)
			dev.Close()
			os.Exit(1)
		}
		fmt.Println("Front panel unlocked.")
		dev.Close()
		os.Exit(0)
	}

	dbAbort := make(chan struct{})
	db := rundb.Start(dbAbort)

	acq := tekdaq.NewAcquisition(cfg, dev)
	acq.SetRunDB(db)
	tekdaq.UpdateLogger.Printf("Starting run %s", acq.RunID())

	if !cfg.NoSave {
		id, err := dev.Identify()
		if err != nil {
			tekdaq.ProblemLogger.Printf("No answer from the instrument on %s: %v", cfg.Port, err)
			dev.Close()
			os.Exit(1)
		}
		fmt.Printf("Connected to %s\n", id)
		sink, err := tekdaq.NewSink(cfg.Output, cfg, id)
		if err != nil {
			tekdaq.ProblemLogger.Printf("Could not open %s: %v", cfg.Output, err)
			dev.Close()
			os.Exit(1)
		}
		acq.SetSink(sink)
		fmt.Printf("Writing to %s\n", sink.Filename())
	}

	var pub *tekdaq.Publisher
	if cfg.PubPort > 0 {
		tekdaq.SetPortnumbers(cfg.PubPort)
		pub = tekdaq.NewPublisher(acq.RunID())
		acq.SetPublisher(pub)
		fmt.Printf("Publishing waveforms on port %d, summaries on port %d\n",
			tekdaq.Ports.Waveforms, tekdaq.Ports.Summaries)
	}

	// A first interrupt stops the run after the current event; the loop polls
	// the abort channel between events.
	abort := make(chan struct{})
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nStopping after the current event")
		close(abort)
	}()

	summary, runErr := acq.Run(abort)
	signal.Stop(sigs)

	if pub != nil {
		pub.Close()
		if d := pub.Dropped(); d > 0 {
			tekdaq.ProblemLogger.Printf("Publisher dropped %d of %d events", d, summary.Events)
		}
	}

	if runErr != nil {
		tekdaq.ProblemLogger.Printf("Run %s failed: %v", summary.RunID, runErr)
	} else {
		fmt.Printf("Captured %d events in %v\n", summary.Events, summary.Duration.Round(time.Millisecond))
		if !cfg.NoSave {
			fmt.Printf("Wrote %d bytes to %s\n", summary.BytesWritten, cfg.Output)
		}
		for _, ch := range cfg.Channels() {
			if s, ok := summary.Summaries[ch]; ok {
				fmt.Printf("  ch%d baseline %.4g V, peak-to-peak %.4g V\n", ch, s.Baseline, s.PkToPk)
			}
		}
		if err := cfg.SaveLastRun(viper.GetViper(), summary.Events); err != nil {
			tekdaq.ProblemLogger.Printf("Could not record the run in the config file: %v", err)
		}
	}

	close(dbAbort)
	db.Wait()
	dev.Close()
	if runErr != nil {
		os.Exit(1)
	}
}
