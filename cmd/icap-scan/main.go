package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/icapio/icap"
	"github.com/icapio/icap/protocol"
)

// icap-scan submits files to an ICAP service and reports the verdict.
// Exit status: 0 all clean, 1 content was flagged/modified, 2 error.
func main() {
	host := flag.String("host", "localhost", "ICAP server host")
	port := flag.Int("port", icap.DefaultPort, "ICAP server port")
	service := flag.String("service", "avscan", "ICAP service name")
	timeout := flag.Duration("timeout", 10*time.Second, "per-operation I/O timeout")
	preview := flag.Int("preview", 0, "preview size in bytes (0 disables preview)")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: icap-scan [flags] <file> [<file>...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	client, err := icap.NewClient(icap.Config{
		Host:    *host,
		Port:    *port,
		Timeout: *timeout,
		Logger:  &log,
	})
	if err != nil {
		log.Error().Err(err).Msg("creating client")
		os.Exit(2)
	}
	defer client.Disconnect()

	flagged := false
	for _, path := range flag.Args() {
		resp, err := scan(client, path, *service, *preview)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("scan failed")
			os.Exit(2)
		}

		switch {
		case resp.NoModification():
			fmt.Printf("%s: clean\n", path)
		default:
			flagged = true
			verdict := resp.Headers["X-Virus-ID"]
			if verdict == "" {
				verdict = fmt.Sprintf("%d %s", resp.StatusCode, resp.StatusMessage)
			}
			fmt.Printf("%s: flagged (%s)\n", path, verdict)
		}
	}

	if flagged {
		os.Exit(1)
	}
}

func scan(client *icap.Client, path, service string, preview int) (*protocol.Response, error) {
	if preview <= 0 {
		return client.ScanFile(path, service)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	httpRequest := protocol.HTTPScanRequest(path)
	httpResponse := append(protocol.HTTPScanResponse(len(data)), data...)
	return client.RespmodPreview(service, httpRequest, httpResponse, preview, nil)
}
