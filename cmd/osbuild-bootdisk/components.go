package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-bootdisk/internal/bootdisk"
	"github.com/osbuild/osbuild-bootdisk/internal/common/slogger"
	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/inventory/dbinventory"
	"github.com/osbuild/osbuild-bootdisk/internal/inventory/fsinventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
	"github.com/osbuild/osbuild-bootdisk/internal/iso"
	"github.com/osbuild/osbuild-bootdisk/internal/token"
)

// components are the pieces shared by the serve and generate commands.
type components struct {
	hosts   inventory.Store
	loader  *iso.Loader
	codec   *token.Codec
	service *bootdisk.Service

	closeHosts func()
}

func (c *components) Close() {
	if c.closeHosts != nil {
		c.closeHosts()
	}
}

// openInventory uses the database when one is configured and the host
// directory otherwise.
func openInventory(ctx context.Context, c *InventoryConfig) (inventory.Store, func(), error) {
	if c.PGDatabase != "" {
		inv, err := dbinventory.NewWithConfig(c.dbURL(), dbinventory.Config{
			Logger: slogger.NewLogrusLogger(logrus.StandardLogger()),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("cannot open host inventory: %v", err)
		}
		if err := inv.Migrate(ctx); err != nil {
			inv.Close()
			return nil, nil, err
		}
		logrus.Infof("Using host inventory in database %s on %s", c.PGDatabase, c.PGHost)
		return inv, inv.Close, nil
	}

	inv, err := fsinventory.New(c.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open host inventory: %v", err)
	}
	logrus.Infof("Using host inventory in %s", c.Dir)
	return inv, func() {}, nil
}

// loadKey reads the token key, or generates one that only lives as long as
// the process.
func loadKey(path string) ([]byte, error) {
	if path != "" {
		return token.LoadKey(path)
	}
	logrus.Warn("No key_file configured, tokens of full host images will not survive a restart")
	return token.GenerateKey()
}

func newComponents(ctx context.Context, cfg *BootdiskConfigFile) (*components, error) {
	c := &components{}
	var err error

	c.hosts, c.closeHosts, err = openInventory(ctx, &cfg.Inventory)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	c.loader, err = iso.LoadLoader(cfg.loaderPaths())
	if err != nil {
		return nil, err
	}
	assembler, err := iso.NewAssembler(c.loader, cfg.TmpDir)
	if err != nil {
		return nil, err
	}

	sources, err := ipxe.LoadTemplates(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}
	renderer, err := ipxe.NewRenderer(sources)
	if err != nil {
		return nil, err
	}

	key, err := loadKey(cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	c.codec, err = token.New(key, cfg.tokenTTL())
	if err != nil {
		return nil, err
	}

	c.service, err = bootdisk.NewService(bootdisk.Config{ServerURL: cfg.ServerURL}, c.hosts, renderer, c.codec, assembler)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"loader":         c.loader.Version,
		"token_duration": cfg.tokenTTL(),
	}).Debug("Boot disk service ready")
	ok = true
	return c, nil
}
