package dirwalk

import (
	"os"
	"path/filepath"
	"testing"

	"fcopy/internal/nastydisk"
	"fcopy/internal/nastynet"
	"fcopy/internal/receiver"
	"fcopy/internal/sender"
)

func TestListFilesIgnoresSubdirectories(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.txt"), "a")
	mustWrite(t, filepath.Join(dir, "b.txt"), "b")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	mustWrite(t, filepath.Join(dir, "sub", "c.txt"), "c")

	names, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(names) != 2 || names[0] != "a.txt" || names[1] != "b.txt" {
		t.Fatalf("got %v, want [a.txt b.txt]", names)
	}
}

func TestRunTransfersEveryFileInSourceDir(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	mustWrite(t, filepath.Join(srcDir, "one.txt"), "first file contents")
	mustWrite(t, filepath.Join(srcDir, "two.txt"), "second, a bit longer than the first one")

	clientRaw, serverRaw := nastynet.Pipe()
	clientConn := nastynet.New(clientRaw, 0)
	serverConn := nastynet.New(serverRaw, 0)

	disk := nastydisk.New(0)
	srv := receiver.NewServer(dstDir, disk, nil)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(serverConn) }()

	summary, err := Run(clientConn, disk, srcDir, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Files) != 2 {
		t.Fatalf("expected 2 files transferred, got %d", len(summary.Files))
	}
	if summary.Succeeded() != 2 {
		for _, f := range summary.Files {
			t.Logf("file %s: result=%v err=%v", f.Name, f.Result, f.Err)
		}
		t.Fatalf("expected both files to succeed, got %d", summary.Succeeded())
	}

	for _, name := range []string{"one.txt", "two.txt"} {
		want, err := os.ReadFile(filepath.Join(srcDir, name))
		if err != nil {
			t.Fatalf("ReadFile src: %v", err)
		}
		got, err := os.ReadFile(filepath.Join(dstDir, name))
		if err != nil {
			t.Fatalf("ReadFile dst: %v", err)
		}
		if string(got) != string(want) {
			t.Fatalf("content mismatch for %s", name)
		}
	}
}

func TestSummaryFailedCountsTransportErrors(t *testing.T) {
	s := Summary{Files: []FileResult{
		{Name: "a", Result: sender.ResultSuccess},
		{Name: "b", Result: sender.ResultDiscarded},
		{Name: "c", Result: sender.ResultSendFailed},
		{Name: "d", Result: sender.ResultSuccess, Err: os.ErrClosed},
	}}
	if s.Succeeded() != 1 {
		t.Fatalf("Succeeded() = %d, want 1", s.Succeeded())
	}
	if s.Failed() != 2 {
		t.Fatalf("Failed() = %d, want 2", s.Failed())
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}
