package sshutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/sftp"
)

// FileSystem is the file access a file-backed zone needs. Rename must
// replace newPath atomically when it exists.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	Rename(oldPath, newPath string) error
	Remove(path string) error
}

// LocalFileSystem implements FileSystem on the local disk.
type LocalFileSystem struct{}

// ReadFile reads a local file.
func (LocalFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes a local file and syncs it to disk.
func (LocalFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Rename renames a local file.
func (LocalFileSystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

// Remove removes a local file.
func (LocalFileSystem) Remove(path string) error {
	return os.Remove(path)
}

// SFTPFileSystem implements FileSystem over SFTP.
type SFTPFileSystem struct {
	client *Client
	logger *slog.Logger

	mu         sync.Mutex
	sftpClient *sftp.Client
}

// SFTPOption is a functional option for configuring the SFTPFileSystem.
type SFTPOption func(*SFTPFileSystem)

// WithSFTPLogger sets a custom logger for SFTP operations.
func WithSFTPLogger(logger *slog.Logger) SFTPOption {
	return func(fs *SFTPFileSystem) {
		if logger != nil {
			fs.logger = logger
		}
	}
}

// NewSFTPFileSystem creates a new SFTP-based FileSystem.
func NewSFTPFileSystem(client *Client, opts ...SFTPOption) *SFTPFileSystem {
	fs := &SFTPFileSystem{
		client: client,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(fs)
	}

	return fs
}

// Connect opens the SFTP session, connecting the SSH client first if
// needed. A session whose SSH connection was dropped is replaced.
func (fs *SFTPFileSystem) Connect(ctx context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient != nil {
		if fs.client.IsConnected() {
			return nil
		}
		_ = fs.sftpClient.Close()
		fs.sftpClient = nil
	}

	if err := fs.client.Ensure(ctx); err != nil {
		return err
	}
	sshConn, err := fs.client.GetConnection()
	if err != nil {
		return fmt.Errorf("getting SSH connection: %w", err)
	}

	sftpClient, err := sftp.NewClient(sshConn)
	if err != nil {
		return fmt.Errorf("creating SFTP client: %w", err)
	}

	fs.sftpClient = sftpClient
	fs.logger.Debug("SFTP session established", slog.String("host", fs.client.config.Host))
	return nil
}

// Close closes the SFTP session. It does not close the SSH connection.
func (fs *SFTPFileSystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient == nil {
		return nil
	}

	err := fs.sftpClient.Close()
	fs.sftpClient = nil
	return err
}

func (fs *SFTPFileSystem) session() (*sftp.Client, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.sftpClient == nil {
		return nil, ErrNotConnected
	}
	return fs.sftpClient, nil
}

// ReadFile reads a remote file. A missing file satisfies
// errors.Is(err, fs.ErrNotExist).
func (fs *SFTPFileSystem) ReadFile(path string) ([]byte, error) {
	sc, err := fs.session()
	if err != nil {
		return nil, err
	}

	file, err := sc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	fs.logger.Debug("file read",
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return data, nil
}

// WriteFile creates or truncates a remote file.
func (fs *SFTPFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	sc, err := fs.session()
	if err != nil {
		return err
	}

	file, err := sc.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("opening file %s for write: %w", path, err)
	}

	n, err := file.Write(data)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("writing to file %s: %w", path, err)
	}
	if n != len(data) {
		_ = file.Close()
		return fmt.Errorf("short write to file %s: wrote %d of %d bytes", path, n, len(data))
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing file %s: %w", path, err)
	}

	if err := sc.Chmod(path, perm); err != nil {
		fs.logger.Warn("failed to set file permissions",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	fs.logger.Debug("file written",
		slog.String("path", path),
		slog.Int("bytes", n),
	)
	return nil
}

// Rename replaces newPath with oldPath using the posix-rename extension,
// since plain SFTP rename refuses to overwrite.
func (fs *SFTPFileSystem) Rename(oldPath, newPath string) error {
	sc, err := fs.session()
	if err != nil {
		return err
	}

	if err := sc.PosixRename(oldPath, newPath); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", oldPath, newPath, err)
	}
	return nil
}

// Remove removes a remote file.
func (fs *SFTPFileSystem) Remove(path string) error {
	sc, err := fs.session()
	if err != nil {
		return err
	}

	if err := sc.Remove(path); err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
