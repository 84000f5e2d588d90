package sender

import (
	"os"
	"path/filepath"
	"testing"

	"fcopy/internal/nastydisk"
	"fcopy/internal/nastynet"
	"fcopy/internal/packet"
	"fcopy/internal/receiver"
)

func TestSendFileFullRoundTripSucceeds(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog")
	fullpath := filepath.Join(srcDir, "fox.txt")
	if err := os.WriteFile(fullpath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	clientRaw, serverRaw := nastynet.Pipe()
	clientConn := nastynet.New(clientRaw, 0)
	serverConn := nastynet.New(serverRaw, 0)
	disk := nastydisk.New(0)

	srv := receiver.NewServer(dstDir, disk, nil)
	go srv.Serve(serverConn)

	result, err := SendFile(clientConn, disk, fullpath, "fox.txt", nil)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if result != ResultSuccess {
		t.Fatalf("got result %v, want success", result)
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "fox.txt"))
	if err != nil {
		t.Fatalf("ReadFile dst: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q want %q", got, content)
	}
}

func TestSendFileMultiPartRoundTripSucceeds(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	content := make([]byte, 3000)
	for i := range content {
		content[i] = byte(i * 7)
	}
	fullpath := filepath.Join(srcDir, "big.bin")
	if err := os.WriteFile(fullpath, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	clientRaw, serverRaw := nastynet.Pipe()
	clientConn := nastynet.New(clientRaw, 0)
	serverConn := nastynet.New(serverRaw, 0)
	disk := nastydisk.New(0)

	srv := receiver.NewServer(dstDir, disk, nil)
	go srv.Serve(serverConn)

	result, err := SendFile(clientConn, disk, fullpath, "big.bin", nil)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if result != ResultSuccess {
		t.Fatalf("got result %v, want success", result)
	}

	got, err := os.ReadFile(filepath.Join(dstDir, "big.bin"))
	if err != nil {
		t.Fatalf("ReadFile dst: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("multi-part content mismatch")
	}
}

func TestSendFileMissingSourceIsRequestUnsuccessful(t *testing.T) {
	clientConn, _ := nastynet.Pipe()
	disk := nastydisk.New(0)

	result, err := SendFile(clientConn, disk, filepath.Join(t.TempDir(), "nope.txt"), "nope.txt", nil)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if result != ResultRequestUnsuccessful {
		t.Fatalf("got result %v, want request-unsuccessful", result)
	}
}

func TestSendFileNoResponderTimesOutAsRequestUnsuccessful(t *testing.T) {
	srcDir := t.TempDir()
	fullpath := filepath.Join(srcDir, "lonely.txt")
	if err := os.WriteFile(fullpath, []byte("no one is listening"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	clientConn, _ := nastynet.Pipe() // other end never read from: every retry times out
	disk := nastydisk.New(0)

	result, err := SendFile(clientConn, disk, fullpath, "lonely.txt", nil)
	if err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	if result != ResultRequestUnsuccessful {
		t.Fatalf("got result %v, want request-unsuccessful", result)
	}
}

func TestSplitFileChunksAtMaxWriteLen(t *testing.T) {
	src := make([]byte, 2500)
	parts := splitFile(src)
	if len(parts) == 0 {
		t.Fatalf("expected at least one part")
	}
	var total int
	for _, p := range parts {
		total += len(p)
	}
	if total != len(src) {
		t.Fatalf("parts cover %d bytes, want %d", total, len(src))
	}
	for i, p := range parts[:len(parts)-1] {
		if len(p) != packet.MaxWriteLen {
			t.Fatalf("part %d has %d bytes, want %d", i, len(p), packet.MaxWriteLen)
		}
	}
}

func TestSplitFileEmptySourceYieldsNoParts(t *testing.T) {
	if parts := splitFile(nil); parts != nil {
		t.Fatalf("expected nil parts for empty source, got %v", parts)
	}
}

func TestResultStringCoversEveryCase(t *testing.T) {
	cases := []Result{
		ResultSuccess, ResultDiscarded, ResultRequestUnsuccessful,
		ResultSendFailed, ResultCheckDenied, ResultCheckTimeout, ResultCleanupError,
	}
	for _, r := range cases {
		if r.String() == "unknown" {
			t.Fatalf("Result %d has no String() case", r)
		}
	}
}
