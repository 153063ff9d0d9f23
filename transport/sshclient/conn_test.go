package sshclient

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/MrEthical07/goRemote/internal"
	"github.com/MrEthical07/goRemote/internal/sshtest"
)

func newConnTest(t *testing.T, opts ...sshtest.Option) (*sshtest.Server, *Conn) {
	t.Helper()
	srv := sshtest.Start(t, opts...)
	conn, err := Dial(context.Background(), Params{
		Host:     srv.Host,
		Port:     srv.Port,
		Username: "tester",
		Password: "secret",
	}, Options{DialTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return srv, conn
}

func TestExec(t *testing.T) {
	_, conn := newConnTest(t)
	tests := []struct {
		command string
		want    ExecResult
	}{
		{"echo hello", ExecResult{Stdout: "hello\n", ExitCode: 0}},
		{"err oops", ExecResult{Stderr: "oops\n", ExitCode: 0}},
		{"exit 3", ExecResult{ExitCode: 3}},
		{"signal", ExecResult{ExitCode: -1}},
		{"nostatus", ExecResult{ExitCode: -1}},
		{"bogus", ExecResult{Stderr: "unknown command: bogus\n", ExitCode: 127}},
	}
	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			got, err := conn.Exec(context.Background(), tc.command)
			if err != nil {
				t.Fatalf("exec: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

func TestExecTimeout(t *testing.T) {
	_, conn := newConnTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := conn.Exec(ctx, "sleep")
	if !errors.Is(err, internal.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAliveAndDrop(t *testing.T) {
	srv, conn := newConnTest(t)
	if !conn.Alive() {
		t.Fatalf("fresh connection not alive")
	}
	srv.DropConnections()

	deadline := time.Now().Add(2 * time.Second)
	for conn.Alive() {
		if time.Now().After(deadline) {
			t.Fatalf("dropped connection still alive")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := conn.Exec(context.Background(), "echo hi"); !errors.Is(err, internal.ErrTransport) {
		t.Fatalf("expected ErrTransport on dead conn, got %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	_, conn := newConnTest(t)
	conn.Close()
	conn.Close()
	if conn.Alive() {
		t.Fatalf("closed connection alive")
	}
}

func TestDialErrors(t *testing.T) {
	srv := sshtest.Start(t)

	_, err := Dial(context.Background(), Params{Host: srv.Host, Port: srv.Port, Username: "tester", Password: "wrong"}, Options{})
	if !errors.Is(err, internal.ErrTransport) {
		t.Fatalf("bad password: expected ErrTransport, got %v", err)
	}

	_, err = Dial(context.Background(), Params{Host: srv.Host, Username: ""}, Options{})
	if !errors.Is(err, internal.ErrValidation) {
		t.Fatalf("missing username: expected ErrValidation, got %v", err)
	}

	_, err = Dial(context.Background(), Params{Host: srv.Host, Port: 70000, Username: "u"}, Options{})
	if !errors.Is(err, internal.ErrValidation) {
		t.Fatalf("bad port: expected ErrValidation, got %v", err)
	}

	_, err = Dial(context.Background(), Params{Host: srv.Host, Port: srv.Port, Username: "u", PrivateKey: "garbage"}, Options{})
	if !errors.Is(err, internal.ErrValidation) {
		t.Fatalf("bad key: expected ErrValidation, got %v", err)
	}
}

func TestKnownHosts(t *testing.T) {
	srv := sshtest.Start(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good")
	line := "[" + srv.Host + "]:" + strconv.Itoa(srv.Port) + " " + string(bytes.TrimSpace(ssh.MarshalAuthorizedKey(srv.HostKey()))) + "\n"
	if err := os.WriteFile(good, []byte(line), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	p := Params{Host: srv.Host, Port: srv.Port, Username: "tester", Password: "secret"}
	conn, err := Dial(context.Background(), p, Options{KnownHostsFile: good})
	if err != nil {
		t.Fatalf("dial with matching known_hosts: %v", err)
	}
	conn.Close()

	_, other, _ := ed25519.GenerateKey(rand.Reader)
	otherSigner, _ := ssh.NewSignerFromKey(other)
	bad := filepath.Join(dir, "bad")
	line = "[" + srv.Host + "]:" + strconv.Itoa(srv.Port) + " " + string(bytes.TrimSpace(ssh.MarshalAuthorizedKey(otherSigner.PublicKey()))) + "\n"
	if err := os.WriteFile(bad, []byte(line), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}
	if _, err := Dial(context.Background(), p, Options{KnownHostsFile: bad}); err == nil {
		t.Fatalf("dial accepted mismatched host key")
	}
}

func TestPrivateKeyAuth(t *testing.T) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	srv := sshtest.Start(t, sshtest.WithAuthorizedKey("keyuser", sshPublic))

	block, err := ssh.MarshalPrivateKeyWithPassphrase(private, "", []byte("hunter2"))
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	encrypted := string(pem.EncodeToMemory(block))

	p := Params{Host: srv.Host, Port: srv.Port, Username: "keyuser", PrivateKey: encrypted}
	if _, err := Dial(context.Background(), p, Options{}); !errors.Is(err, internal.ErrValidation) {
		t.Fatalf("encrypted key without password: expected ErrValidation, got %v", err)
	}

	p.Password = "hunter2"
	conn, err := Dial(context.Background(), p, Options{})
	if err != nil {
		t.Fatalf("dial with encrypted key: %v", err)
	}
	defer conn.Close()
	res, err := conn.Exec(context.Background(), "echo key")
	if err != nil || res.Stdout != "key\n" {
		t.Fatalf("exec = %+v, %v", res, err)
	}
}

func TestSFTP(t *testing.T) {
	_, conn := newConnTest(t)
	ctx := context.Background()
	dir := t.TempDir()

	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	payload := []byte("printer config\x00\x01\x02")
	target := filepath.Join(dir, "cfg.bin")

	if err := conn.Upload(ctx, target, payload); err != nil {
		t.Fatalf("upload: %v", err)
	}
	got, err := conn.Download(ctx, target)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("download = %q want %q", got, payload)
	}

	// Upload truncates.
	if err := conn.Upload(ctx, target, []byte("x")); err != nil {
		t.Fatalf("re-upload: %v", err)
	}
	if got, _ := conn.Download(ctx, target); string(got) != "x" {
		t.Fatalf("upload did not truncate: %q", got)
	}

	entries, err := conn.ListDir(ctx, dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	file, sub := entries[0], entries[1]
	if file.Name != "cfg.bin" || file.IsDirectory || file.Size != 1 || file.Path != target {
		t.Fatalf("file entry = %+v", file)
	}
	if !sub.IsDirectory || sub.Permissions[0] != 'd' {
		t.Fatalf("dir entry = %+v", sub)
	}
	if _, err := time.Parse(time.RFC3339, file.ModifiedAt); err != nil {
		t.Fatalf("modifiedAt %q: %v", file.ModifiedAt, err)
	}
}

func TestSFTPErrorsKeepConnection(t *testing.T) {
	_, conn := newConnTest(t)
	ctx := context.Background()

	_, err := conn.Download(ctx, filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
	if errors.Is(err, internal.ErrTransport) {
		t.Fatalf("missing file classified as transport failure")
	}
	if !conn.Alive() {
		t.Fatalf("connection died after file error")
	}
}

func TestDownloadLimit(t *testing.T) {
	srv := sshtest.Start(t)
	conn, err := Dial(context.Background(), Params{Host: srv.Host, Port: srv.Port, Username: "tester", Password: "secret"},
		Options{MaxDownloadBytes: 4})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	target := filepath.Join(t.TempDir(), "big")
	if err := os.WriteFile(target, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = conn.Download(context.Background(), target)
	if !errors.Is(err, ErrTooLarge) || !errors.Is(err, internal.ErrValidation) {
		t.Fatalf("expected ErrTooLarge+ErrValidation, got %v", err)
	}
}

func TestParamsVaultRoundTrip(t *testing.T) {
	p := Params{Host: "printer.local", Username: "admin", Password: "pw"}
	if err := p.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if p.Port != DefaultPort {
		t.Fatalf("default port not applied: %d", p.Port)
	}
	v := p.ToVault()
	if _, ok := v["privateKey"]; ok {
		t.Fatalf("empty private key stored")
	}
	back, err := FromVault(v)
	if err != nil {
		t.Fatalf("from vault: %v", err)
	}
	if back != p {
		t.Fatalf("round trip = %+v want %+v", back, p)
	}
	if _, err := FromVault(map[string]any{"host": "h"}); !errors.Is(err, internal.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing username, got %v", err)
	}
}
