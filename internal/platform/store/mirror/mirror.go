// Package mirror implements a SQLite + JSON mirror persistence driver.
// SQLite is the source of truth; JSON is a one-way export for operators.
// The program never reads the JSON back.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store/sqlite"
)

func init() {
	store.Register("mirror", NewDriver)
}

// Driver wraps the sqlite driver and re-exports a table after each write.
type Driver struct {
	*sqlite.Driver

	dataDir   string
	mirrorCfg store.MirrorConfig
	mu        sync.Mutex // serializes exports
}

// NewDriver creates a new mirror driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	base, err := sqlite.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	d := &Driver{
		Driver:    base,
		dataDir:   cfg.DataDir,
		mirrorCfg: cfg.Mirror,
	}
	base.AfterWrite = d.export
	return d, nil
}

func (d *Driver) Name() string {
	return "mirror"
}

func (d *Driver) mirrorDir() string {
	return filepath.Join(d.dataDir, "mirror")
}

// Init initializes SQLite and writes the initial export.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.mirrorDir(), 0o700); err != nil {
		return fmt.Errorf("failed to create mirror dir: %w", err)
	}
	if err := d.Driver.Init(ctx); err != nil {
		return err
	}
	for _, table := range []string{sqlite.TableMemberships, sqlite.TableInvites, sqlite.TableTasks, sqlite.TableEvents} {
		if err := d.export(ctx, table); err != nil {
			return fmt.Errorf("failed to export mirror: %w", err)
		}
	}
	return nil
}

func (d *Driver) export(ctx context.Context, table string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	db := d.DB().WithContext(ctx)
	switch table {
	case sqlite.TableMemberships:
		var rows []*store.Membership
		if err := db.Order("created_at ASC").Find(&rows).Error; err != nil {
			return err
		}
		return d.writeJSON(table+".json", rows)
	case sqlite.TableInvites:
		var rows []*store.Invite
		if err := db.Order("created_at ASC").Find(&rows).Error; err != nil {
			return err
		}
		if !d.mirrorCfg.IncludeInviteEmails {
			for _, inv := range rows {
				inv.Email = ""
			}
		}
		return d.writeJSON(table+".json", rows)
	case sqlite.TableTasks:
		var rows []*store.Task
		if err := db.Order("created_at ASC").Find(&rows).Error; err != nil {
			return err
		}
		return d.writeJSON(table+".json", rows)
	case sqlite.TableEvents:
		var rows []*store.Event
		if err := db.Order("starts_at ASC").Find(&rows).Error; err != nil {
			return err
		}
		return d.writeJSON(table+".json", rows)
	default:
		return fmt.Errorf("mirror: unknown table %q", table)
	}
}

// writeJSON atomically replaces a file in the mirror directory.
func (d *Driver) writeJSON(filename string, data any) error {
	path := filepath.Join(d.mirrorDir(), filename)
	tempPath := path + ".tmp"

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(jsonData); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

var _ store.Store = (*Driver)(nil)
