package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
)

// testConfig points the loader and the inventory at a temporary directory.
func testConfig(t *testing.T) *BootdiskConfigFile {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, data, 0600))
		return p
	}

	cfg := GetDefaultConfig()
	cfg.ServerURL = "https://foreman.example.com"
	cfg.TmpDir = t.TempDir()
	cfg.Inventory.Dir = filepath.Join(dir, "hosts")
	cfg.Loader = LoaderConfig{
		BootImage: write("isolinux.bin", bytes.Repeat([]byte{0xfa}, 2048)),
		LDLinux:   write("ldlinux.c32", []byte("ldlinux")),
		IPXE:      write("ipxe.lkrn", []byte("ipxe")),
	}
	cfg.KeyFile = write("token.key", []byte("0123456789abcdef0123456789abcdef"))
	return cfg
}

func TestGenerateAndInspect(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	c, err := newComponents(ctx, cfg)
	require.NoError(t, err)
	defer c.Close()
	require.Len(t, c.loader.Version, 12)

	require.NoError(t, c.hosts.Add(ctx, inventory.Host{
		ID:              "42",
		Name:            "node1.example.com",
		ProvisioningURL: "https://provision.example.com",
		Interface:       &inventory.Interface{MAC: "52:54:00:ab:cd:ef"},
	}))

	out := t.TempDir()
	path, err := generate(ctx, c.service, ipxe.KindHost, []string{"42"}, out)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, "node1.example.com.iso"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var buf bytes.Buffer
	require.NoError(t, inspect(&buf, f, false))
	require.Contains(t, buf.String(), "bootable=true")
	require.Contains(t, buf.String(), "/ISOLINUX/SCRIPT.IPXE")

	buf.Reset()
	require.NoError(t, inspect(&buf, f, true))
	require.True(t, strings.HasPrefix(buf.String(), "#!ipxe"))
	require.Contains(t, buf.String(), "https://provision.example.com/unattended/iPXE?host=42")

	// nothing left behind in the temporary directory
	entries, err := os.ReadDir(cfg.TmpDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGenerateUnknownHost(t *testing.T) {
	ctx := context.Background()
	c, err := newComponents(ctx, testConfig(t))
	require.NoError(t, err)
	defer c.Close()

	out := t.TempDir()
	_, err = generate(ctx, c.service, ipxe.KindFullHost, []string{"nope"}, out)
	require.ErrorIs(t, err, inventory.ErrHostNotFound)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestNewComponentsMissingLoader(t *testing.T) {
	cfg := testConfig(t)
	cfg.Loader.IPXE = filepath.Join(t.TempDir(), "missing")
	_, err := newComponents(context.Background(), cfg)
	require.Error(t, err)
}

func TestHostFromFlags(t *testing.T) {
	hostFlags.mac = "52:54:00:ab:cd:ef"
	hostFlags.ip = "10.0.0.5"
	hostFlags.kernel = "https://repo.example.com/vmlinuz"
	hostFlags.kernelArgs = "inst.text  console=ttyS0"
	defer func() {
		hostFlags.mac, hostFlags.ip, hostFlags.kernel, hostFlags.kernelArgs = "", "", "", ""
	}()

	h := hostFromFlags("node1.example.com")
	require.NotEmpty(t, h.ID)
	require.Equal(t, "10.0.0.5", h.Interface.IP)
	require.Equal(t, []string{"inst.text", "console=ttyS0"}, h.Boot.KernelArgs)
	require.NoError(t, h.Validate())
}
