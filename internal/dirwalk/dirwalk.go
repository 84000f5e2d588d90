// Package dirwalk implements the directory driver: enumerate the regular
// files directly under a source directory and drive one sender.SendFile
// call per file, half-duplex, aggregating a per-file report.
package dirwalk

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"fcopy/internal/humanize"
	"fcopy/internal/nastydisk"
	"fcopy/internal/sender"
	"fcopy/internal/transport"
)

// FileResult records the outcome of transferring one file.
type FileResult struct {
	Name   string
	Bytes  int64
	Result sender.Result
	Err    error
}

// Summary aggregates the outcome of one directory run.
type Summary struct {
	Files []FileResult
}

// Succeeded reports how many transfers ended in sender.ResultSuccess
// without a transport error.
func (s Summary) Succeeded() int {
	n := 0
	for _, f := range s.Files {
		if f.Err == nil && f.Result == sender.ResultSuccess {
			n++
		}
	}
	return n
}

// Failed reports how many transfers ended in a transport error or in
// anything other than success or a clean discard.
func (s Summary) Failed() int {
	n := 0
	for _, f := range s.Files {
		if f.Err != nil || (f.Result != sender.ResultSuccess && f.Result != sender.ResultDiscarded) {
			n++
		}
	}
	return n
}

// ListFiles returns the basenames of every regular file directly under
// srcDir, sorted for deterministic run order. Subdirectories are ignored.
func ListFiles(srcDir string) ([]string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Run transfers every regular file directly under srcDir to conn, one at a
// time, and returns a Summary covering every attempted file. A per-file
// transport error does not abort the run; it is recorded and the driver
// moves on to the next file.
func Run(conn transport.Conn, disk *nastydisk.Disk, srcDir string, log *logrus.Entry) (Summary, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	names, err := ListFiles(srcDir)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for _, name := range names {
		fullpath := filepath.Join(srcDir, name)
		fileLog := log.WithField("file", name)

		size := nastydisk.Size(fullpath)
		result, err := sender.SendFile(conn, disk, fullpath, name, fileLog)
		summary.Files = append(summary.Files, FileResult{Name: name, Bytes: size, Result: result, Err: err})

		if err != nil {
			fileLog.WithError(err).Warn("transfer ended in a transport error")
			continue
		}
		fileLog.WithFields(logrus.Fields{"result": result, "size": humanize.Bytes(size)}).Info("transfer finished")
	}

	return summary, nil
}
