// Package sqlite implements a SQLite-based persistence driver using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/familyagenda-go/internal/platform/store"
)

// DBFile is the database file name inside the data directory.
const DBFile = "familyagenda.db"

// Table names passed to write hooks.
const (
	TableMemberships = "memberships"
	TableInvites     = "invites"
	TableTasks       = "tasks"
	TableEvents      = "events"
)

func init() {
	store.Register("sqlite", NewDriver)
}

// Driver implements store.Store using SQLite via GORM.
type Driver struct {
	dataDir string
	db      *gorm.DB

	// AfterWrite, when set, runs after every successful write to a table.
	// Its error is returned to the caller.
	AfterWrite func(ctx context.Context, table string) error
}

// NewDriver creates a new SQLite driver instance.
func NewDriver(cfg *store.DriverConfig) (store.Store, error) {
	return New(cfg)
}

// New returns the concrete driver so wrappers can install hooks.
func New(cfg *store.DriverConfig) (*Driver, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for sqlite driver")
	}
	return &Driver{dataDir: cfg.DataDir}, nil
}

func (d *Driver) Name() string {
	return "sqlite"
}

// DB exposes the handle for read-only exports.
func (d *Driver) DB() *gorm.DB {
	return d.db
}

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	if err := os.MkdirAll(d.dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	dsn := filepath.Join(d.dataDir, DBFile) + "?_busy_timeout=5000&_journal_mode=WAL"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	d.db = db

	if err := db.WithContext(ctx).AutoMigrate(
		&store.Membership{},
		&store.Invite{},
		&store.Task{},
		&store.Event{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Driver) wrote(ctx context.Context, table string) error {
	if d.AfterWrite == nil {
		return nil
	}
	return d.AfterWrite(ctx, table)
}

// isDuplicate recognizes primary key and unique violations whether or not
// GORM translated them.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// MembershipStore implementation

func (d *Driver) GetMembership(ctx context.Context, familyID, userID string) (*store.Membership, error) {
	var m store.Membership
	err := d.db.WithContext(ctx).First(&m, "family_id = ? AND user_id = ?", familyID, userID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (d *Driver) CreateMembership(ctx context.Context, m *store.Membership) error {
	if err := d.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return store.ErrAlreadyExists
		}
		return err
	}
	return d.wrote(ctx, TableMemberships)
}

func (d *Driver) DeleteMembership(ctx context.Context, familyID, userID string) error {
	res := d.db.WithContext(ctx).Delete(&store.Membership{}, "family_id = ? AND user_id = ?", familyID, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return d.wrote(ctx, TableMemberships)
}

func (d *Driver) ListMemberships(ctx context.Context, familyID string) ([]*store.Membership, error) {
	var out []*store.Membership
	err := d.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("created_at ASC, user_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InviteStore implementation

func (d *Driver) CreateInvite(ctx context.Context, inv *store.Invite) error {
	if err := d.db.WithContext(ctx).Create(inv).Error; err != nil {
		if isDuplicate(err) {
			return store.ErrAlreadyExists
		}
		return err
	}
	return d.wrote(ctx, TableInvites)
}

func (d *Driver) LatestInviteForEmail(ctx context.Context, familyID, email string) (*store.Invite, error) {
	var inv store.Invite
	err := d.db.WithContext(ctx).
		Where("family_id = ? AND lower(email) = ?", familyID, strings.ToLower(strings.TrimSpace(email))).
		Order("created_at DESC, id DESC").
		First(&inv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (d *Driver) MarkInviteAccepted(ctx context.Context, id string, at time.Time) (bool, error) {
	res := d.db.WithContext(ctx).
		Model(&store.Invite{}).
		Where("id = ? AND accepted_at IS NULL", id).
		Update("accepted_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	return true, d.wrote(ctx, TableInvites)
}

func (d *Driver) ListInvites(ctx context.Context, familyID string) ([]*store.Invite, error) {
	var out []*store.Invite
	err := d.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AgendaStore implementation

func (d *Driver) CreateTask(ctx context.Context, t *store.Task) error {
	if err := d.db.WithContext(ctx).Create(t).Error; err != nil {
		if isDuplicate(err) {
			return store.ErrAlreadyExists
		}
		return err
	}
	return d.wrote(ctx, TableTasks)
}

func (d *Driver) GetTask(ctx context.Context, familyID, id string) (*store.Task, error) {
	var t store.Task
	if err := d.db.WithContext(ctx).First(&t, "id = ? AND family_id = ?", id, familyID).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (d *Driver) UpdateTask(ctx context.Context, t *store.Task) error {
	res := d.db.WithContext(ctx).
		Model(&store.Task{}).
		Where("id = ? AND family_id = ?", t.ID, t.FamilyID).
		Select("*").
		Updates(t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return d.wrote(ctx, TableTasks)
}

func (d *Driver) DeleteTask(ctx context.Context, familyID, id string) error {
	res := d.db.WithContext(ctx).Delete(&store.Task{}, "id = ? AND family_id = ?", id, familyID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return d.wrote(ctx, TableTasks)
}

func (d *Driver) ListTasks(ctx context.Context, familyID string) ([]*store.Task, error) {
	var out []*store.Task
	err := d.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Driver) CreateEvent(ctx context.Context, e *store.Event) error {
	if err := d.db.WithContext(ctx).Create(e).Error; err != nil {
		if isDuplicate(err) {
			return store.ErrAlreadyExists
		}
		return err
	}
	return d.wrote(ctx, TableEvents)
}

func (d *Driver) GetEvent(ctx context.Context, familyID, id string) (*store.Event, error) {
	var e store.Event
	if err := d.db.WithContext(ctx).First(&e, "id = ? AND family_id = ?", id, familyID).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (d *Driver) UpdateEvent(ctx context.Context, e *store.Event) error {
	res := d.db.WithContext(ctx).
		Model(&store.Event{}).
		Where("id = ? AND family_id = ?", e.ID, e.FamilyID).
		Select("*").
		Updates(e)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return d.wrote(ctx, TableEvents)
}

func (d *Driver) DeleteEvent(ctx context.Context, familyID, id string) error {
	res := d.db.WithContext(ctx).Delete(&store.Event{}, "id = ? AND family_id = ?", id, familyID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return d.wrote(ctx, TableEvents)
}

func (d *Driver) ListEvents(ctx context.Context, familyID string) ([]*store.Event, error) {
	var out []*store.Event
	err := d.db.WithContext(ctx).
		Where("family_id = ?", familyID).
		Order("starts_at ASC, id ASC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

var _ store.Store = (*Driver)(nil)
