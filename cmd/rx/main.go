package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/drunlade/go-serialxfer/serial"
	"github.com/drunlade/go-serialxfer/xfer"
)

var (
	device   = flag.String("d", "/dev/ttyUSB0", "serial device")
	baud     = flag.Int("b", 115200, "baud rate")
	protocol = flag.String("p", "zmodem", "protocol: xmodem, xmodem-crc, xmodem-1k, ymodem, zmodem")
	settings = flag.String("c", "", "INI settings file for the serial port")
	output   = flag.String("o", "", "output file (default: the transmitted file name)")
	timeout  = flag.Duration("t", 10*time.Second, "per-block stall timeout")
	verbose  = flag.Bool("v", false, "verbose mode")
	quiet    = flag.Bool("q", false, "quiet mode")
	help     = flag.Bool("h", false, "show help")
	version  = flag.Bool("version", false, "show version")
)

const versionString = "rx version 0.1.0"

func showUsage(exitCode int) {
	fmt.Fprintf(os.Stderr, `Usage: %s [options]

Receives a file over a serial port.

Options:
  -d string     serial device (default /dev/ttyUSB0)
  -b int        baud rate (default 115200)
  -p string     protocol: xmodem, xmodem-crc, xmodem-1k, ymodem, zmodem
  -c string     INI settings file for the serial port
  -o string     output file (default: the transmitted file name)
  -t duration   per-block stall timeout (default 10s)
  -v            verbose mode
  -q            quiet mode
  -h            show help
`, os.Args[0])
	os.Exit(exitCode)
}

// parseProtocol maps the -p flag to a protocol variant.
func parseProtocol(name string) (xfer.Protocol, error) {
	switch name {
	case "xmodem":
		return xfer.XModemChecksum, nil
	case "xmodem-crc":
		return xfer.XModemCRC, nil
	case "xmodem-1k":
		return xfer.XModem1K, nil
	case "ymodem":
		return xfer.YModem, nil
	case "zmodem":
		return xfer.ZModem, nil
	}
	return 0, fmt.Errorf("unknown protocol %q", name)
}

// loadPortConfig builds the port configuration from flags and, when given,
// an INI settings file with a [port] section.
func loadPortConfig() (serial.Config, error) {
	cfg := serial.DefaultConfig()
	cfg.BaudRate = *baud

	if *settings == "" {
		return cfg, nil
	}

	f, err := ini.Load(*settings)
	if err != nil {
		return cfg, err
	}
	sec := f.Section("port")
	cfg.BaudRate = sec.Key("baud").MustInt(cfg.BaudRate)
	cfg.DataBits = sec.Key("data_bits").MustInt(cfg.DataBits)
	cfg.StopBits = sec.Key("stop_bits").MustInt(cfg.StopBits)
	switch sec.Key("parity").MustString("none") {
	case "odd":
		cfg.Parity = serial.ParityOdd
	case "even":
		cfg.Parity = serial.ParityEven
	default:
		cfg.Parity = serial.ParityNone
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *help {
		showUsage(0)
	}

	if *version {
		fmt.Println(versionString)
		os.Exit(0)
	}

	log.SetFormatter(&log.TextFormatter{DisableTimestamp: false})
	if *verbose {
		log.SetLevel(log.DebugLevel)
	} else if *quiet {
		log.SetLevel(log.ErrorLevel)
	}

	proto, err := parseProtocol(*protocol)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := loadPortConfig()
	if err != nil {
		log.Fatalf("settings: %v", err)
	}

	port, err := serial.Open(*device, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer port.Close()

	log.Infof("receiving over %s (%s) using %s", *device, cfg, proto)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracker := xfer.NewRateTracker(func(name string, transferred, total uint64, rate float64) {
		if *quiet {
			return
		}
		fmt.Fprintf(os.Stderr, "\r%s: %d bytes (%.0f bytes/s)", name, transferred, rate)
	}, 0)

	pump := xfer.NewPump(port, proto,
		xfer.WithPumpLogger(xfer.NewLogrusLogger(log.StandardLogger())),
		xfer.WithEvents(tracker.Observe),
		xfer.WithStallTimeout(*timeout),
	)

	data, name, err := pump.Receive(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr)
		log.Fatalf("transfer failed: %v", err)
	}

	out := *output
	if out == "" {
		out = name
	}
	if out == "" {
		out = "received.bin"
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		log.Fatal(err)
	}

	if !*quiet {
		fmt.Fprintf(os.Stderr, "\n%s: %d bytes received\n", out, len(data))
	}
}
