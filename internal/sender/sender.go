// Package sender implements the per-file sender state machine: request,
// stream parts, end-to-end check, commit/discard report, final FIN.
package sender

import (
	"time"

	"github.com/sirupsen/logrus"

	"fcopy/internal/fhash"
	"fcopy/internal/filestore"
	"fcopy/internal/nastydisk"
	"fcopy/internal/nettiming"
	"fcopy/internal/packet"
	"fcopy/internal/transport"
)

// Timeouts and retry budgets, per spec.
const (
	StepTimeout  = 50 * time.Millisecond
	CheckTimeout = 1 * time.Second
	MaxTries     = 10
	MaxChkTries  = 10
)

// Result classifies the outcome of one SendFile call.
type Result int

const (
	// ResultSuccess means the receiver committed a byte-exact copy.
	ResultSuccess Result = iota
	// ResultDiscarded means the protocol completed correctly but every
	// end-to-end comparison mismatched, so the receiver discarded the
	// temp file; not one of the five spec-named failures because nothing
	// actually went wrong at the protocol level.
	ResultDiscarded
	ResultRequestUnsuccessful
	ResultSendFailed
	ResultCheckDenied
	ResultCheckTimeout
	ResultCleanupError
)

func (r Result) String() string {
	switch r {
	case ResultSuccess:
		return "success"
	case ResultDiscarded:
		return "discarded"
	case ResultRequestUnsuccessful:
		return "request unsuccessful"
	case ResultSendFailed:
		return "send failed"
	case ResultCheckDenied:
		return "check denied"
	case ResultCheckTimeout:
		return "check timeout"
	case ResultCleanupError:
		return "cleanup error"
	default:
		return "unknown"
	}
}

// SendFile transfers one file to the receiver over conn, reading it through
// disk so that source-side file nastiness is defeated the same way the
// receiver's write-back is verified.
func SendFile(conn transport.Conn, disk *nastydisk.Disk, fullpath, fname string, log *logrus.Entry) (Result, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("file", fname)
	var rtt nettiming.Monitor

	source, err := filestore.Read(disk, fullpath)
	if err != nil {
		log.WithError(err).Warn("could not load file for sending")
		return ResultRequestUnsuccessful, nil
	}

	fileID, initSeqNo, result, err := requestFile(conn, &rtt, fname, len(source), log)
	if err != nil || result != ResultSuccess {
		return result, err
	}

	if result, err := streamParts(conn, &rtt, fileID, initSeqNo, source, log); err != nil || result != ResultSuccess {
		return result, err
	}

	matched, checkFailure, err := checkLoop(conn, &rtt, disk, fullpath, fileID, log)
	if err != nil {
		return ResultSendFailed, err
	}
	if checkFailure != nil {
		return *checkFailure, nil
	}

	final, err := report(conn, &rtt, fileID, matched, log)
	if err != nil {
		return ResultSendFailed, err
	}

	log.WithField("smoothed_rtt", rtt.SmoothedRTT).Debug("transfer timing")

	if final.Flags.Has(packet.FlagNeg) {
		// Receiver's rename/remove failed; still send the final FIN below.
		sendFin(conn, fileID, log)
		return ResultCleanupError, nil
	}

	sendFin(conn, fileID, log)

	if matched {
		return ResultSuccess, nil
	}
	return ResultDiscarded, nil
}

// requestFile performs step 1: REQ|FILE carrying the filename and size,
// expecting back the assigned fileid and initial seqno.
func requestFile(conn transport.Conn, rtt *nettiming.Monitor, fname string, size int, log *logrus.Entry) (fileID int32, initSeqNo int32, result Result, err error) {
	out := packet.New(packet.NullFileID, packet.FlagReq|packet.FlagFile, int32(size), []byte(fname))
	expect := packet.Expect{FileID: packet.NullFileID, Flags: packet.FlagReq | packet.FlagFile, SeqNo: packet.NullSeqNo}

	var resp packet.Packet
	werr := rtt.Time(func() error {
		var e error
		resp, e = transport.WritePacketWithRetries(conn, out, StepTimeout, expect, MaxTries)
		return e
	})
	if werr != nil {
		log.Warn("file request timed out")
		return 0, 0, ResultRequestUnsuccessful, nil
	}
	if resp.Flags.Has(packet.FlagNeg) {
		log.Warn("file request denied")
		return 0, 0, ResultRequestUnsuccessful, nil
	}
	return resp.FileID, resp.SeqNo, ResultSuccess, nil
}

// streamParts performs step 2: send consecutive MaxWriteLen chunks, each
// acknowledged individually before the next is sent.
func streamParts(conn transport.Conn, rtt *nettiming.Monitor, fileID, initSeqNo int32, source []byte, log *logrus.Entry) (Result, error) {
	parts := splitFile(source)
	for i, chunk := range parts {
		seqNo := initSeqNo + int32(i)
		out := packet.New(fileID, packet.FlagFile, seqNo, chunk)
		expect := packet.Expect{FileID: fileID, Flags: packet.FlagFile, SeqNo: seqNo}

		err := rtt.Time(func() error {
			_, e := transport.WritePacketWithRetries(conn, out, StepTimeout, expect, MaxTries)
			return e
		})
		if err != nil {
			log.WithField("seqno", seqNo).Warn("part send failed")
			return ResultSendFailed, nil
		}
	}
	return ResultSuccess, nil
}

// splitFile breaks source into consecutive MaxWriteLen-byte chunks.
func splitFile(source []byte) [][]byte {
	if len(source) == 0 {
		return nil
	}
	var parts [][]byte
	for off := 0; off < len(source); off += packet.MaxWriteLen {
		end := off + packet.MaxWriteLen
		if end > len(source) {
			end = len(source)
		}
		parts = append(parts, source[off:end])
	}
	return parts
}

// checkLoop performs step 3: up to MaxChkTries rounds of REQ|CHECK, each
// re-reading the source file locally (to defeat local file nastiness too)
// and comparing against the receiver's reported hash of its temp file.
func checkLoop(conn transport.Conn, rtt *nettiming.Monitor, disk *nastydisk.Disk, fullpath string, fileID int32, log *logrus.Entry) (matched bool, failure *Result, err error) {
	expect := packet.Expect{FileID: fileID, Flags: packet.FlagReq | packet.FlagCheck, SeqNo: packet.NullSeqNo}

	for attempt := int32(0); attempt < MaxChkTries; attempt++ {
		out := packet.New(fileID, packet.FlagReq|packet.FlagCheck, attempt, nil)
		var resp packet.Packet
		werr := rtt.Time(func() error {
			var e error
			resp, e = transport.WritePacketWithRetries(conn, out, CheckTimeout, expect, MaxTries)
			return e
		})
		if werr != nil {
			log.Warn("check request timed out")
			r := ResultCheckTimeout
			return false, &r, nil
		}
		if resp.Flags.Has(packet.FlagNeg) {
			log.Warn("check request denied")
			r := ResultCheckDenied
			return false, &r, nil
		}

		receiverHash := fhash.FromBytes(resp.Data[:resp.DataLen])

		sourceBytes, err := filestore.Read(disk, fullpath)
		if err != nil {
			log.WithError(err).Warn("local re-read for check failed")
			continue
		}
		sourceHash := fhash.Sum(sourceBytes)

		if sourceHash.Equal(receiverHash) {
			return true, nil, nil
		}
		log.WithField("attempt", attempt).Debug("check mismatch, retrying")
	}

	// Attempts exhausted without a match: the final comparison stands,
	// report() below tells the receiver to discard.
	return false, nil, nil
}

// report performs step 4: tell the receiver to commit or discard.
func report(conn transport.Conn, rtt *nettiming.Monitor, fileID int32, matched bool, log *logrus.Entry) (packet.Packet, error) {
	flags := packet.FlagCheck | packet.FlagPos
	if !matched {
		flags = packet.FlagCheck | packet.FlagNeg
	}
	out := packet.New(fileID, flags, packet.NullSeqNo, nil)
	expect := packet.Expect{FileID: fileID, Flags: packet.FlagCheck | packet.FlagFin, SeqNo: packet.NullSeqNo}

	var resp packet.Packet
	err := rtt.Time(func() error {
		var e error
		resp, e = transport.WritePacketWithRetries(conn, out, StepTimeout, expect, MaxTries)
		return e
	})
	if err != nil {
		log.Warn("report step timed out")
		return packet.Packet{}, err
	}
	return resp, nil
}

// sendFin performs step 5. Its loss is tolerated: the receiver also times
// out back to idle, so no error here is treated as fatal.
func sendFin(conn transport.Conn, fileID int32, log *logrus.Entry) {
	out := packet.New(fileID, packet.FlagFin, packet.NullSeqNo, nil)
	expect := packet.Expect{FileID: fileID, Flags: packet.FlagFin, SeqNo: packet.NullSeqNo}
	if _, err := transport.WritePacketWithRetries(conn, out, StepTimeout, expect, MaxTries); err != nil {
		log.Debug("final FIN unacknowledged, ignoring (receiver will time out on its own)")
	}
}
