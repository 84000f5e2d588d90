// Package filestore implements the corruption-tolerant whole-file read
// (majority-vote over repeated chunk reads) used to defeat file nastiness,
// and a plain write-back whose corruption is caught end-to-end, sitting on
// top of the low-level nastydisk primitive.
package filestore

import (
	"errors"

	"fcopy/internal/fhash"
	"fcopy/internal/nastydisk"
	"fcopy/internal/packet"
)

// RWTries is the number of independent re-reads performed per chunk before
// the modal hash is trusted.
const RWTries = 100

// ErrNotRegularFile is returned by Read when the path does not exist or is
// not a regular file.
var ErrNotRegularFile = errors.New("filestore: not a regular file")

// Read returns the exact bytes of name, reading through disk in chunks of
// packet.MaxWriteLen bytes. Each chunk is read RWTries times; the modal
// hash among those reads is trusted, and disk is re-read until a chunk
// matching that hash is observed, confirming a sampled buffer rather than
// trusting whichever buffer happened to be read first.
func Read(disk *nastydisk.Disk, name string) ([]byte, error) {
	if !nastydisk.IsRegularFile(name) {
		return nil, ErrNotRegularFile
	}

	size := nastydisk.Size(name)
	if size < 0 {
		return nil, ErrNotRegularFile
	}
	if size == 0 {
		return []byte{}, nil
	}

	out := make([]byte, size)
	var offset int64
	for offset < size {
		n := int(size - offset)
		if n > packet.MaxWriteLen {
			n = packet.MaxWriteLen
		}
		chunk, err := readChunkByMajority(disk, name, offset, n)
		if err != nil {
			return nil, err
		}
		copy(out[offset:], chunk)
		offset += int64(n)
	}
	return out, nil
}

// readChunkByMajority implements the two-pass majority-vote algorithm for
// one chunk: a sampling pass to find the modal hash, then a confirmation
// pass that re-reads until a chunk with that hash is observed.
func readChunkByMajority(disk *nastydisk.Disk, name string, offset int64, n int) ([]byte, error) {
	counts := make(map[fhash.Hash]int)
	var modal fhash.Hash
	maxCount := 0

	for i := 0; i < RWTries; i++ {
		chunk, err := disk.ReadChunk(name, offset, n)
		if err != nil {
			return nil, err
		}
		h := fhash.Sum(chunk)
		counts[h]++
		if counts[h] > maxCount {
			maxCount = counts[h]
			modal = h
		}
	}

	for {
		chunk, err := disk.ReadChunk(name, offset, n)
		if err != nil {
			return nil, err
		}
		if fhash.Sum(chunk).Equal(modal) {
			return chunk, nil
		}
	}
}

// Write persists data to name as a plain write-back. Write-path corruption
// is not detected here; it is caught end-to-end by the receiver re-reading
// its own temp file and the sender comparing hashes.
func Write(disk *nastydisk.Disk, name string, data []byte) error {
	return disk.WriteFile(name, data)
}
