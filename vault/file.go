package vault

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

const (
	fileEntrySuffix = ".age"
	fileNamePurpose = "goremote vault file names v1"
)

// File stores one sealed file per entry under <dir>/<namespace>/. File names
// are a keyed BLAKE3 hash of the session id so ids never reach the file
// system, and the key is bound to the sealer identity.
type File struct {
	dir       string
	namespace string
	codec     entryCodec
	nameKey   [32]byte
}

var (
	_ Vault  = (*File)(nil)
	_ Purger = (*File)(nil)
)

// NewFile creates a file-backed vault rooted at dir.
func NewFile(dir, namespace string, sealer *Sealer) (*File, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: vault directory is required", ErrUnavailable)
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	codec, err := newEntryCodec(sealer)
	if err != nil {
		return nil, err
	}

	f := &File{
		dir:       filepath.Join(dir, namespace),
		namespace: namespace,
		codec:     codec,
		nameKey:   sealer.nameKey(fileNamePurpose),
	}
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating vault directory: %v", ErrUnavailable, err)
	}
	return f, nil
}

func (f *File) Namespace() string { return f.namespace }

func (f *File) path(id string) string {
	hasher, err := blake3.NewKeyed(f.nameKey[:])
	if err != nil {
		// Only fails for keys that are not 32 bytes.
		panic("vault: blake3 keyed hasher: " + err.Error())
	}
	hasher.WriteString(f.namespace)
	hasher.Write([]byte{0})
	hasher.WriteString(id)
	return filepath.Join(f.dir, hex.EncodeToString(hasher.Sum(nil))+fileEntrySuffix)
}

func (f *File) Put(_ context.Context, id string, params Params) error {
	blob, err := f.codec.encode(params)
	if err != nil {
		return err
	}
	if err := writeFileSync(f.path(id), blob, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (f *File) Get(_ context.Context, id string) (Params, error) {
	blob, err := os.ReadFile(f.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return f.codec.decode(blob)
}

func (f *File) Delete(_ context.Context, id string) error {
	err := os.Remove(f.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Purge removes every entry file of the namespace, including temp files
// left behind by an interrupted Put.
func (f *File) Purge(_ context.Context) (int, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		isEntry := strings.HasSuffix(name, fileEntrySuffix)
		if !isEntry && !strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if isEntry {
			removed++
		}
	}
	return removed, nil
}

// writeFileSync writes data to path atomically: temp file in the same
// directory, fsync, rename, then fsync of the directory so the rename
// itself survives a crash.
func writeFileSync(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true

	dirHandle, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening directory for sync: %w", err)
	}
	defer dirHandle.Close()
	if err := dirHandle.Sync(); err != nil {
		return fmt.Errorf("syncing directory: %w", err)
	}
	return nil
}
