// Package fsinventory implements inventory.Inventory on top of a directory of
// JSON documents, one per host.
package fsinventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/jsondb"
)

type FSInventory struct {
	db *jsondb.JSONDatabase
}

// New opens the inventory stored in dir, creating the directory if needed.
// A relative dir is resolved against the current working directory once.
func New(dir string) (*FSInventory, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("error resolving inventory directory: %v", err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("error creating inventory directory: %v", err)
	}
	return &FSInventory{db: jsondb.New(dir, 0600)}, nil
}

// Add stores a host record under its identifier.
func (i *FSInventory) Add(ctx context.Context, h inventory.Host) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if h.Interface != nil {
		iface := *h.Interface
		iface.MAC, _ = inventory.NormalizeMAC(iface.MAC)
		h.Interface = &iface
	}
	return i.db.Write(h.ID, h)
}

// Remove deletes the record for id, if any.
func (i *FSInventory) Remove(ctx context.Context, id string) error {
	return i.db.Delete(id)
}

func (i *FSInventory) Host(ctx context.Context, id string) (*inventory.Host, error) {
	var h inventory.Host
	exists, err := i.db.Read(id, &h)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", inventory.ErrHostNotFound, id)
	}
	return &h, nil
}

// HostByMAC scans all records. Inventories of this kind are meant for small
// labs and tests; use dbinventory for anything bigger.
func (i *FSInventory) HostByMAC(ctx context.Context, mac string) (*inventory.Host, error) {
	want, err := inventory.NormalizeMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", inventory.ErrHostNotFound, err)
	}

	names, err := i.db.List()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var h inventory.Host
		exists, err := i.db.Read(name, &h)
		if err != nil {
			logrus.WithError(err).Warnf("Skipping unreadable host document %s", name)
			continue
		}
		if !exists || h.Interface == nil {
			continue
		}
		if got, _ := inventory.NormalizeMAC(h.Interface.MAC); got == want {
			return &h, nil
		}
	}
	return nil, fmt.Errorf("%w: mac %s", inventory.ErrHostNotFound, want)
}
