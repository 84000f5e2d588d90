package packet

// Expect matches packets by identity: FileID == NullFileID matches any
// fileid, SeqNo == NullSeqNo matches any seqno, and Flags is a required
// subset of the packet's flags (extra flags on the packet are allowed).
type Expect struct {
	FileID int32
	Flags  Flags
	SeqNo  int32
}

// Matches reports whether p satisfies e.
func (e Expect) Matches(p Packet) bool {
	fileOK := e.FileID == NullFileID || e.FileID == p.FileID
	seqOK := e.SeqNo == NullSeqNo || e.SeqNo == p.SeqNo
	flagsOK := p.Flags.Has(e.Flags)
	return fileOK && seqOK && flagsOK
}
