package tls_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/config"
	tlspkg "github.com/MahdiBaghbani/familyagenda-go/internal/platform/http/tls"
)

func TestManager_Off(t *testing.T) {
	mgr := tlspkg.NewManager(&config.TLSConfig{Mode: "off"}, nil)
	cfg, err := mgr.ServerConfig("localhost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Error("expected nil TLS config for off mode")
	}
}

func TestManager_StaticMissingFiles(t *testing.T) {
	mgr := tlspkg.NewManager(&config.TLSConfig{Mode: "static"}, nil)
	if _, err := mgr.ServerConfig("localhost"); !errors.Is(err, tlspkg.ErrMissingCert) {
		t.Errorf("expected ErrMissingCert, got %v", err)
	}
}

func TestManager_InvalidMode(t *testing.T) {
	mgr := tlspkg.NewManager(&config.TLSConfig{Mode: "bogus"}, nil)
	if _, err := mgr.ServerConfig("localhost"); !errors.Is(err, tlspkg.ErrInvalidTLSMode) {
		t.Errorf("expected ErrInvalidTLSMode, got %v", err)
	}
}

func TestManager_ACMEDelegated(t *testing.T) {
	mgr := tlspkg.NewManager(&config.TLSConfig{Mode: "acme"}, nil)
	if _, err := mgr.ServerConfig("agenda.example.org"); !errors.Is(err, tlspkg.ErrACMEManaged) {
		t.Errorf("expected ErrACMEManaged, got %v", err)
	}
}

func leafOf(t *testing.T, certFile string) *x509.Certificate {
	t.Helper()
	data, err := os.ReadFile(certFile)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		t.Fatal("no PEM block in cert file")
	}
	leaf, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return leaf
}

func TestManager_SelfSignedGeneratesAndReuses(t *testing.T) {
	dir := t.TempDir()
	mgr := tlspkg.NewManager(&config.TLSConfig{Mode: "selfsigned", SelfSignedDir: dir}, nil)

	cfg, err := mgr.ServerConfig("agenda.local")
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(cfg.Certificates))
	}

	certPath := filepath.Join(dir, "server.crt")
	keyInfo, err := os.Stat(filepath.Join(dir, "server.key"))
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if keyInfo.Mode().Perm() != 0o600 {
		t.Errorf("key perms = %v, want 0600", keyInfo.Mode().Perm())
	}
	first := leafOf(t, certPath)
	if err := first.VerifyHostname("agenda.local"); err != nil {
		t.Errorf("cert does not cover hostname: %v", err)
	}
	if err := first.VerifyHostname("localhost"); err != nil {
		t.Errorf("cert does not cover localhost: %v", err)
	}

	if _, err := mgr.ServerConfig("agenda.local"); err != nil {
		t.Fatalf("second ServerConfig: %v", err)
	}
	if second := leafOf(t, certPath); second.SerialNumber.Cmp(first.SerialNumber) != 0 {
		t.Error("expected stored certificate to be reused")
	}
}

func TestManager_SelfSignedRegeneratesForNewHost(t *testing.T) {
	dir := t.TempDir()
	mgr := tlspkg.NewManager(&config.TLSConfig{Mode: "selfsigned", SelfSignedDir: dir}, nil)
	if _, err := mgr.ServerConfig("one.local"); err != nil {
		t.Fatal(err)
	}
	first := leafOf(t, filepath.Join(dir, "server.crt"))

	if _, err := mgr.ServerConfig("two.local"); err != nil {
		t.Fatal(err)
	}
	second := leafOf(t, filepath.Join(dir, "server.crt"))
	if second.SerialNumber.Cmp(first.SerialNumber) == 0 {
		t.Error("expected a new certificate for a different hostname")
	}
	if err := second.VerifyHostname("two.local"); err != nil {
		t.Errorf("regenerated cert does not cover new host: %v", err)
	}
}

func mustCreateCAPEM(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestBuildRootCAPool(t *testing.T) {
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caFile, mustCreateCAPEM(t), 0o644); err != nil {
		t.Fatal(err)
	}
	caDir := filepath.Join(dir, "cas")
	if err := os.MkdirAll(filepath.Join(caDir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(caDir, "extra.CRT"), mustCreateCAPEM(t), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(caDir, "README.txt"), []byte("not a cert"), 0o644); err != nil {
		t.Fatal(err)
	}
	badFile := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(badFile, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		file    string
		dir     string
		wantNil bool
		wantErr bool
	}{
		{name: "both empty", wantNil: true},
		{name: "file only", file: caFile},
		{name: "dir only skips non-pem", dir: caDir},
		{name: "merged", file: caFile, dir: caDir},
		{name: "missing file", file: filepath.Join(dir, "nope.pem"), wantErr: true},
		{name: "invalid pem", file: badFile, wantErr: true},
		{name: "missing dir", dir: filepath.Join(dir, "nope"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, err := tlspkg.BuildRootCAPool(tt.file, tt.dir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (pool == nil) != tt.wantNil {
				t.Errorf("pool nil = %v, want %v", pool == nil, tt.wantNil)
			}
		})
	}
}
