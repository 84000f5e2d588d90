// Package receiver implements the receiver state machine: a single
// session served at a time through IDLE -> FILE -> CHECK -> FIN, with a
// duplicate-response cache providing idempotent retries.
package receiver

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"fcopy/internal/fhash"
	"fcopy/internal/filestore"
	"fcopy/internal/nastydisk"
	"fcopy/internal/packet"
	"fcopy/internal/transport"
)

// GiveupTimeout is how long the receiver waits for any traffic before
// resetting a live session back to IDLE.
const GiveupTimeout = 7 * time.Second

// Server runs the receiver's main loop against one target directory.
type Server struct {
	TargetDir string
	Disk      *nastydisk.Disk
	Log       *logrus.Entry

	state      sessionState
	cache      map[string]packet.Packet // keyed by packet.Packet.Key() of the request
	nextFileID int32
}

// NewServer builds a Server ready to Serve.
func NewServer(targetDir string, disk *nastydisk.Disk, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Server{TargetDir: targetDir, Disk: disk, Log: log}
	s.reset()
	return s
}

// reset clears the duplicate-response cache and returns to IDLE, matching
// both the "on every IDLE transition" and "on timeout" clearing rules.
func (s *Server) reset() {
	s.state = idleState{}
	s.cache = make(map[string]packet.Packet)
}

// Serve runs the receive loop until conn.Recv returns a non-timeout error
// (a transport failure, which terminates this side; the sender recovers
// via its own timeouts).
func (s *Server) Serve(conn transport.Conn) error {
	for {
		raw, err := conn.Recv(GiveupTimeout)
		if err == transport.ErrTimeout {
			if _, idle := s.state.(idleState); !idle {
				s.Log.WithField("state", s.state.name()).Info("session timed out, resetting to idle")
			}
			s.reset()
			continue
		}
		if err != nil {
			return err
		}
		p, err := packet.Decode(raw)
		if err != nil {
			continue // malformed datagram: dropped without a response
		}

		resp, send := s.handle(p)
		if send {
			if err := transport.WritePacket(conn, resp); err != nil {
				return err
			}
		}
	}
}

// handle implements the transition table in full, including the
// duplicate-response cache and the "wrong fileid" and "unexpected input"
// catch-all rows. The FIN reply of the FIN->IDLE transition is not cached,
// since that transition clears the cache.
func (s *Server) handle(p packet.Packet) (resp packet.Packet, send bool) {
	if cached, ok := s.cache[p.Key()]; ok {
		return cached, true
	}

	switch st := s.state.(type) {
	case idleState:
		if !p.Flags.Has(packet.FlagReq | packet.FlagFile) {
			return packet.Error(), true
		}
		resp = s.handleFileRequest(p)

	case fileState:
		if p.FileID != st.fileID {
			return packet.Error(), true // wrong fileid: no state change, not cached
		}
		switch {
		case p.Flags == packet.FlagFile:
			resp = s.handleFilePart(st, p)
		case p.Flags.Has(packet.FlagReq | packet.FlagCheck):
			resp = s.handleCheckRequest(st.fileID, st.fname, st.fullname, st.tmpname, st.filesize, st.parts, p)
		default:
			return packet.Error(), true
		}

	case checkState:
		if p.FileID != st.fileID {
			return packet.Error(), true
		}
		switch {
		case p.Flags.Has(packet.FlagReq | packet.FlagCheck):
			resp = s.handleCheckRequest(st.fileID, st.fname, st.fullname, st.tmpname, st.filesize, st.parts, p)
		case p.Flags.Has(packet.FlagCheck) && (p.Flags.Has(packet.FlagPos) || p.Flags.Has(packet.FlagNeg)):
			resp = s.handleCheckResult(st, p)
		default:
			return packet.Error(), true
		}

	case finState:
		if p.FileID != st.fileID {
			return packet.Error(), true
		}
		if p.Flags == packet.FlagFin {
			s.reset()
			return packet.New(st.fileID, packet.FlagFin, packet.NullSeqNo, nil), true
		}
		return packet.Error(), true

	default:
		return packet.Error(), true
	}

	s.cache[p.Key()] = resp
	return resp, true
}

// handleFileRequest: IDLE + REQ|FILE -> FILE.
func (s *Server) handleFileRequest(p packet.Packet) packet.Packet {
	fname := strings.TrimRight(string(p.Data[:p.DataLen]), "\x00")

	if !validFilename(fname) {
		s.Log.WithField("fname", fname).Warn("rejecting request with unsafe filename")
		return packet.Error()
	}

	s.nextFileID++
	fileID := s.nextFileID
	fullname := filepath.Join(s.TargetDir, fname)
	const initSeqNo int32 = 0

	s.cache = make(map[string]packet.Packet)
	s.state = fileState{
		fileID:   fileID,
		fname:    fname,
		fullname: fullname,
		tmpname:  fullname + ".TMP",
		filesize: p.SeqNo, // seqno overloaded as filesize, per wire format
		parts:    make(map[int32]packet.Packet),
	}

	s.Log.WithFields(logrus.Fields{"fileid": fileID, "fname": fname}).Info("accepted file request")

	return packet.New(fileID, packet.FlagReq|packet.FlagFile|packet.FlagPos, initSeqNo, nil)
}

// handleFilePart: FILE + FILE -> FILE.
func (s *Server) handleFilePart(st fileState, p packet.Packet) packet.Packet {
	st.parts[p.SeqNo] = p
	s.state = st
	return packet.New(st.fileID, packet.FlagFile, p.SeqNo, nil)
}

// handleCheckRequest: {FILE,CHECK} + REQ|CHECK -> CHECK. Per spec, both the
// first entry from FILE and any repeat from CHECK re-save and re-hash.
func (s *Server) handleCheckRequest(fileID int32, fname, fullname, tmpname string, filesize int32, parts map[int32]packet.Packet, p packet.Packet) packet.Packet {
	s.state = checkState{fileID: fileID, fname: fname, fullname: fullname, tmpname: tmpname, filesize: filesize, parts: parts}

	buf, ok := mergeParts(parts, filesize)
	if !ok {
		s.Log.Warn("could not assemble file from received parts")
		return packet.New(fileID, packet.FlagReq|packet.FlagCheck|packet.FlagNeg, p.SeqNo, nil)
	}

	if err := filestore.Write(s.Disk, tmpname, buf); err != nil {
		s.Log.WithError(err).Warn("could not write temp file")
		return packet.New(fileID, packet.FlagReq|packet.FlagCheck|packet.FlagNeg, p.SeqNo, nil)
	}

	stored, err := filestore.Read(s.Disk, tmpname)
	if err != nil {
		s.Log.WithError(err).Warn("could not read back temp file for hashing")
		return packet.New(fileID, packet.FlagReq|packet.FlagCheck|packet.FlagNeg, p.SeqNo, nil)
	}

	hash := fhash.Sum(stored)
	return packet.New(fileID, packet.FlagReq|packet.FlagCheck|packet.FlagPos, p.SeqNo, hash.Bytes())
}

// handleCheckResult: CHECK + CHECK|{POS,NEG} -> FIN.
func (s *Server) handleCheckResult(st checkState, p packet.Packet) packet.Packet {
	s.state = finState{fileID: st.fileID}

	var cleanupErr error
	if p.Flags.Has(packet.FlagPos) {
		cleanupErr = nastydisk.Rename(st.tmpname, st.fullname)
	} else {
		cleanupErr = nastydisk.Remove(st.tmpname)
	}

	flags := packet.FlagCheck | packet.FlagFin | packet.FlagPos
	if cleanupErr != nil {
		s.Log.WithError(cleanupErr).Warn("cleanup failed")
		flags = packet.FlagCheck | packet.FlagFin | packet.FlagNeg
	}
	return packet.New(st.fileID, flags, packet.NullSeqNo, nil)
}

// mergeParts assembles parts (keyed by seqno, starting at 0) into one
// contiguous buffer of exactly filesize bytes. Returns ok=false if any
// part is missing.
func mergeParts(parts map[int32]packet.Packet, filesize int32) ([]byte, bool) {
	buf := make([]byte, filesize)
	var written int32
	for i := int32(0); written < filesize; i++ {
		p, ok := parts[i]
		if !ok {
			return nil, false
		}
		n := int32(p.DataLen)
		if written+n > filesize {
			n = filesize - written
		}
		copy(buf[written:written+n], p.Data[:n])
		written += n
		if n == 0 {
			return nil, false // would never advance
		}
	}
	return buf, true
}

// validFilename rejects basenames that could escape the target directory.
func validFilename(fname string) bool {
	if fname == "" || fname == "." || fname == ".." {
		return false
	}
	if strings.ContainsAny(fname, "/\\") {
		return false
	}
	return filepath.Base(fname) == fname
}
