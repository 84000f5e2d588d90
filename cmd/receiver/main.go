// Command receiver accepts one file transfer at a time into a target
// directory over a (possibly nasty) UDP-like channel:
// receiver <networknastiness:0..4> <filenastiness:0..5> <targetdir>.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"fcopy/internal/nastydisk"
	"fcopy/internal/nastynet"
	"fcopy/internal/receiver"
)

const listenPort = 9417

func usage() {
	fmt.Fprintln(os.Stderr, "usage: receiver [-logfile path] [-port N] <networknastiness:0..4> <filenastiness:0..5> <targetdir>")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("receiver", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	logfile := fs.String("logfile", "", "write debug log to this file instead of stderr")
	port := fs.Int("port", listenPort, "UDP port to listen on")
	if err := fs.Parse(args); err != nil {
		usage()
		return 1
	}

	rest := fs.Args()
	if len(rest) != 3 {
		usage()
		return 1
	}

	log := logrus.New()
	if *logfile != "" {
		f, err := os.OpenFile(*logfile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "receiver: cannot open logfile: %v\n", err)
			return 8
		}
		defer f.Close()
		log.SetOutput(f)
	}

	netNastiness, err := parseNastiness(rest[0], nastynet.MaxNastiness, "networknastiness")
	if err != nil {
		fmt.Fprintln(os.Stderr, "receiver:", err)
		return 4
	}
	fileNastiness, err := parseNastiness(rest[1], nastydisk.MaxNastiness, "filenastiness")
	if err != nil {
		fmt.Fprintln(os.Stderr, "receiver:", err)
		return 4
	}
	targetDir := rest[2]

	info, err := os.Stat(targetDir)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "receiver: %s is not a directory\n", targetDir)
		return 8
	}

	raw, err := nastynet.ListenUDP(*port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "receiver: listen failed:", err)
		return 1
	}
	defer raw.Close()

	conn := nastynet.New(raw, netNastiness)
	disk := nastydisk.New(fileNastiness)

	entry := log.WithFields(logrus.Fields{"role": "receiver", "port": *port, "targetdir": targetDir})
	entry.Info("listening")

	srv := receiver.NewServer(targetDir, disk, entry)
	if err := srv.Serve(conn); err != nil {
		entry.WithError(err).Error("serve loop exited")
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
