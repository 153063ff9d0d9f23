package sshclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"

	"github.com/MrEthical07/goRemote/internal"
)

// Entry describes one directory entry.
type Entry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	IsDirectory bool   `json:"isDirectory"`
	ModifiedAt  string `json:"modifiedAt"`
	Permissions string `json:"permissions"`
}

// ErrTooLarge is returned by Download for files over MaxDownloadBytes.
var ErrTooLarge = errors.New("remote file exceeds download limit")

// ListDir lists dir. The "." and ".." entries are never returned.
func (c *Conn) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	client, err := c.sftpClient()
	if err != nil {
		return nil, err
	}

	var infos []os.FileInfo
	err = withContext(ctx, func() error {
		var readErr error
		infos, readErr = client.ReadDir(dir)
		return readErr
	})
	if err != nil {
		return nil, sftpError("list", dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}
		entries = append(entries, Entry{
			Name:        name,
			Path:        path.Join(dir, name),
			Size:        info.Size(),
			IsDirectory: info.IsDir(),
			ModifiedAt:  info.ModTime().UTC().Format(time.RFC3339),
			Permissions: info.Mode().String(),
		})
	}
	return entries, nil
}

// Download reads the whole remote file at remotePath.
func (c *Conn) Download(ctx context.Context, remotePath string) ([]byte, error) {
	client, err := c.sftpClient()
	if err != nil {
		return nil, err
	}

	var data []byte
	err = withContext(ctx, func() error {
		f, err := client.Open(remotePath)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		if info.Size() > c.opts.MaxDownloadBytes {
			return fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
		}

		var buf bytes.Buffer
		buf.Grow(int(info.Size()))
		n, err := io.Copy(&buf, io.LimitReader(f, c.opts.MaxDownloadBytes+1))
		if err != nil {
			return err
		}
		if n > c.opts.MaxDownloadBytes {
			return fmt.Errorf("%w: file grew during download", ErrTooLarge)
		}
		data = buf.Bytes()
		return nil
	})
	if err != nil {
		return nil, sftpError("download", remotePath, err)
	}
	return data, nil
}

// Upload creates or truncates remotePath and writes data to it.
func (c *Conn) Upload(ctx context.Context, remotePath string, data []byte) error {
	client, err := c.sftpClient()
	if err != nil {
		return err
	}

	err = withContext(ctx, func() error {
		f, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return sftpError("upload", remotePath, err)
	}
	return nil
}

// withContext runs fn, returning early if ctx ends. fn keeps running in
// the background until the connection is closed.
func withContext(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", internal.ErrTimeout, ctx.Err())
	}
}

// sftpError keeps file-level failures (missing file, permission, size
// limit) as plain errors so the connection stays pooled, and marks
// everything else as a transport failure.
func sftpError(op, remotePath string, err error) error {
	var status *sftp.StatusError
	switch {
	case errors.Is(err, internal.ErrTimeout):
		return err
	case errors.Is(err, ErrTooLarge):
		return fmt.Errorf("%w: sftp %s %s: %w", internal.ErrValidation, op, remotePath, err)
	case errors.As(err, &status),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("sftp %s %s: %w", op, remotePath, err)
	default:
		return fmt.Errorf("%w: sftp %s %s: %v", internal.ErrTransport, op, remotePath, err)
	}
}
