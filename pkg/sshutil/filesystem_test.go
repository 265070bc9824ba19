package sshutil

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"testing"

	"gitlab.bluewillows.net/root/dynhost/pkg/sshutil/sshtest"
)

// exerciseFileSystem runs the write, rename and remove sequence a
// file-backed zone performs on an update.
func exerciseFileSystem(t *testing.T, fs FileSystem, dir string) {
	t.Helper()

	target := filepath.Join(dir, "dynhost.conf")
	tmp := target + ".tmp"

	if _, err := fs.ReadFile(target); !errors.Is(err, iofs.ErrNotExist) {
		t.Fatalf("ReadFile() on missing file error = %v, want ErrNotExist", err)
	}

	if err := fs.WriteFile(target, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := fs.WriteFile(tmp, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("WriteFile(tmp) error = %v", err)
	}
	if err := fs.Rename(tmp, target); err != nil {
		t.Fatalf("Rename() over existing file error = %v", err)
	}

	data, err := fs.ReadFile(target)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "new\n" {
		t.Errorf("ReadFile() = %q, want %q", data, "new\n")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("temp file still present after Rename(): %v", err)
	}

	if err := fs.Remove(target); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := fs.Remove(target); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("second Remove() error = %v, want ErrNotExist", err)
	}
}

func TestLocalFileSystem(t *testing.T) {
	exerciseFileSystem(t, LocalFileSystem{}, t.TempDir())
}

func TestSFTPFileSystem(t *testing.T) {
	srv := sshtest.NewServer(t)
	client, err := NewClient(serverConfig(t, srv), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	fs := NewSFTPFileSystem(client, WithSFTPLogger(testLogger()))
	if err := fs.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer fs.Close()

	exerciseFileSystem(t, fs, t.TempDir())
}

func TestSFTPFileSystem_Reconnects(t *testing.T) {
	srv := sshtest.NewServer(t)
	client, err := NewClient(serverConfig(t, srv), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	fs := NewSFTPFileSystem(client, WithSFTPLogger(testLogger()))
	ctx := context.Background()
	if err := fs.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	conn, _ := client.GetConnection()
	client.drop(conn)

	if err := fs.Connect(ctx); err != nil {
		t.Fatalf("Connect() after dropped connection error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "f")
	if err := fs.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Errorf("WriteFile() after reconnect error = %v", err)
	}
}

func TestSFTPFileSystem_NotConnected(t *testing.T) {
	client, err := NewClient(&Config{Host: "dns.lan", User: "admin", Password: "pw", InsecureIgnoreHostKey: true})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	fs := NewSFTPFileSystem(client)

	if _, err := fs.ReadFile("/x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ReadFile() error = %v, want ErrNotConnected", err)
	}
	if err := fs.WriteFile("/x", nil, 0o644); !errors.Is(err, ErrNotConnected) {
		t.Errorf("WriteFile() error = %v, want ErrNotConnected", err)
	}
	if err := fs.Rename("/x", "/y"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Rename() error = %v, want ErrNotConnected", err)
	}
	if err := fs.Remove("/x"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Remove() error = %v, want ErrNotConnected", err)
	}
	if err := fs.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
