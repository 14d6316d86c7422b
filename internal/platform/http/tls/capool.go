package tls

import (
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BuildRootCAPool merges the system roots with certificates from caFile and
// every *.pem / *.crt regular file in caDir. With neither set it returns
// (nil, nil) and callers fall back to system defaults.
func BuildRootCAPool(caFile, caDir string) (*x509.CertPool, error) {
	if caFile == "" && caDir == "" {
		return nil, nil
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	if caFile != "" {
		if err := appendPEMFile(pool, caFile); err != nil {
			return nil, fmt.Errorf("tls_root_ca_file: %w", err)
		}
	}
	if caDir != "" {
		files, err := pemFilesIn(caDir)
		if err != nil {
			return nil, fmt.Errorf("tls_root_ca_dir: %w", err)
		}
		for _, f := range files {
			if err := appendPEMFile(pool, f); err != nil {
				return nil, fmt.Errorf("tls_root_ca_dir: %w", err)
			}
		}
	}
	return pool, nil
}

func appendPEMFile(pool *x509.CertPool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q failed: %w", path, err)
	}
	if !pool.AppendCertsFromPEM(data) {
		return fmt.Errorf("%q: no valid PEM certificates found", path)
	}
	return nil
}

// pemFilesIn skips subdirectories, symlinks and non-certificate extensions.
func pemFilesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".pem" && ext != ".crt" {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	return out, nil
}
