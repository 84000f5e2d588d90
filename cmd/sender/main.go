// Command sender drives a directory of files to a receiver over a
// (possibly nasty) UDP-like channel: sender <server> <networknastiness:0..4>
// <filenastiness:0..5> <srcdir>.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"fcopy/internal/dirwalk"
	"fcopy/internal/humanize"
	"fcopy/internal/nastydisk"
	"fcopy/internal/nastynet"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: sender [-logfile path] <server> <networknastiness:0..4> <filenastiness:0..5> <srcdir>")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("sender", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	logfile := fs.String("logfile", "", "write debug log to this file instead of stderr")
	if err := fs.Parse(args); err != nil {
		usage()
		return 1
	}

	rest := fs.Args()
	if len(rest) != 4 {
		usage()
		return 1
	}
	server, rest := rest[0], rest[1:]

	log := logrus.New()
	if *logfile != "" {
		f, err := os.OpenFile(*logfile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "sender: cannot open logfile: %v\n", err)
			return 8
		}
		defer f.Close()
		log.SetOutput(f)
	}

	netNastiness, err := parseNastiness(rest[0], nastynet.MaxNastiness, "networknastiness")
	if err != nil {
		fmt.Fprintln(os.Stderr, "sender:", err)
		return 4
	}
	fileNastiness, err := parseNastiness(rest[1], nastydisk.MaxNastiness, "filenastiness")
	if err != nil {
		fmt.Fprintln(os.Stderr, "sender:", err)
		return 4
	}
	srcDir := rest[2]

	info, err := os.Stat(srcDir)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "sender: %s is not a directory\n", srcDir)
		return 8
	}

	raw, err := nastynet.DialUDP(server)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sender: dial failed:", err)
		return 1
	}
	defer raw.Close()

	conn := nastynet.New(raw, netNastiness)
	disk := nastydisk.New(fileNastiness)

	entry := log.WithFields(logrus.Fields{"role": "sender", "server": server})
	summary, err := dirwalk.Run(conn, disk, srcDir, entry)
	if err != nil {
		entry.WithError(err).Error("directory run failed")
		return 1
	}

	var totalBytes int64
	for _, f := range summary.Files {
		totalBytes += f.Bytes
	}
	entry.WithFields(logrus.Fields{
		"total":       len(summary.Files),
		"succeeded":   summary.Succeeded(),
		"failed":      summary.Failed(),
		"total_bytes": humanize.Bytes(totalBytes),
	}).Info("run complete")
	for _, f := range summary.Files {
		entry.WithFields(logrus.Fields{"file": f.Name, "size": humanize.Bytes(f.Bytes), "result": f.Result, "err": f.Err}).Info("file result")
	}

	if summary.Failed() > 0 {
		return 1
	}
	return 0
}

func parseNastiness(s string, max int, label string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", label, s)
	}
	if n < 0 || n > max {
		return 0, fmt.Errorf("%s %d out of range 0..%d", label, n, max)
	}
	return n, nil
}
