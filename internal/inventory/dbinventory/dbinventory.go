// Package dbinventory implements inventory.Inventory backed by a PostgreSQL
// database.
//
// Interface and boot configuration are stored as JSONB next to the indexed
// columns used for lookups.
package dbinventory

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-bootdisk/internal/common/slogger"
	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
)

//go:embed schema.sql
var schema string

const (
	sqlQueryHost = `
		SELECT id, name, architecture, provisioning_url, interface, boot
		FROM hosts
		WHERE id = $1`
	sqlQueryHostByMAC = `
		SELECT id, name, architecture, provisioning_url, interface, boot
		FROM hosts
		WHERE mac = $1`
	sqlUpsertHost = `
		INSERT INTO hosts(id, name, architecture, provisioning_url, mac, interface, boot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = $2, architecture = $3, provisioning_url = $4, mac = $5, interface = $6, boot = $7`
	sqlDeleteHost = `DELETE FROM hosts WHERE id = $1`

	pgUniqueViolation = "23505"
)

var ErrDuplicateMAC = errors.New("another host already owns this mac address")

type DBInventory struct {
	logger slogger.SimpleLogger
	pool   *pgxpool.Pool
}

// Config allows more detailed customization of the inventory.
type Config struct {
	// Logger is used for all logging of the inventory, when not provided,
	// the standard logrus logger is used.
	Logger slogger.SimpleLogger
}

// New connects to the database at `url` with default configuration.
func New(url string) (*DBInventory, error) {
	stdLogger := slogger.NewLogrusLogger(logrus.StandardLogger())
	return NewWithConfig(url, Config{Logger: stdLogger})
}

// NewWithConfig connects to the database at `url` with specific
// configuration.
func NewWithConfig(url string, config Config) (*DBInventory, error) {
	pool, err := pgxpool.Connect(context.Background(), url)
	if err != nil {
		return nil, fmt.Errorf("error establishing connection: %v", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = slogger.NewLogrusLogger(logrus.StandardLogger())
	}
	return &DBInventory{logger: logger, pool: pool}, nil
}

func (i *DBInventory) Close() {
	i.pool.Close()
}

// Migrate creates the hosts table if it does not exist yet.
func (i *DBInventory) Migrate(ctx context.Context) error {
	_, err := i.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("error creating schema: %v", err)
	}
	return nil
}

func (i *DBInventory) Host(ctx context.Context, id string) (*inventory.Host, error) {
	h, err := i.queryHost(ctx, sqlQueryHost, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", inventory.ErrHostNotFound, id)
	}
	return h, err
}

func (i *DBInventory) HostByMAC(ctx context.Context, mac string) (*inventory.Host, error) {
	normalized, err := inventory.NormalizeMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inventory.ErrHostNotFound, err)
	}
	h, err := i.queryHost(ctx, sqlQueryHostByMAC, normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: mac %s", inventory.ErrHostNotFound, normalized)
	}
	return h, err
}

func (i *DBInventory) queryHost(ctx context.Context, query string, arg interface{}) (*inventory.Host, error) {
	conn, err := i.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}
	defer conn.Release()

	var h inventory.Host
	var iface, boot []byte
	err = conn.QueryRow(ctx, query, arg).Scan(&h.ID, &h.Name, &h.Architecture, &h.ProvisioningURL, &iface, &boot)
	if err != nil {
		return nil, err
	}
	if iface != nil {
		h.Interface = &inventory.Interface{}
		if err := json.Unmarshal(iface, h.Interface); err != nil {
			return nil, fmt.Errorf("error decoding interface of host %s: %v", h.ID, err)
		}
	}
	if boot != nil {
		h.Boot = &inventory.BootConfig{}
		if err := json.Unmarshal(boot, h.Boot); err != nil {
			return nil, fmt.Errorf("error decoding boot configuration of host %s: %v", h.ID, err)
		}
	}
	return &h, nil
}

// Add inserts or replaces a host record.
func (i *DBInventory) Add(ctx context.Context, h inventory.Host) error {
	if err := h.Validate(); err != nil {
		return err
	}

	var mac *string
	var iface, boot []byte
	var err error
	if h.Interface != nil {
		normalized, _ := inventory.NormalizeMAC(h.Interface.MAC)
		mac = &normalized
		copied := *h.Interface
		copied.MAC = normalized
		if iface, err = json.Marshal(copied); err != nil {
			return err
		}
	}
	if h.Boot != nil {
		if boot, err = json.Marshal(h.Boot); err != nil {
			return err
		}
	}

	_, err = i.pool.Exec(ctx, sqlUpsertHost, h.ID, h.Name, h.Architecture, h.ProvisioningURL, mac, iface, boot)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateMAC, *mac)
		}
		return fmt.Errorf("error storing host %s: %v", h.ID, err)
	}
	i.logger.Debug("Stored host record", "host_id", h.ID)
	return nil
}

// Remove deletes the record for id, if any.
func (i *DBInventory) Remove(ctx context.Context, id string) error {
	tag, err := i.pool.Exec(ctx, sqlDeleteHost, id)
	if err != nil {
		return fmt.Errorf("error deleting host %s: %v", id, err)
	}
	if tag.RowsAffected() == 0 {
		i.logger.Warn(nil, "No host record to delete", "host_id", id)
	}
	return nil
}
