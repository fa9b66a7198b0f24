package iso

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

const (
	// The boot catalog stores the boot image size in 16 bits.
	maxBootImageSize = 65535
	// The boot info table occupies bytes 8 to 64 of the boot image.
	minBootImageSize = 64
)

// LoaderPaths points at the boot loader files installed on the host.
type LoaderPaths struct {
	// Version identifies the loader bundle in logs and /help. When empty,
	// a digest of the files is used.
	Version   string
	BootImage string
	LDLinux   string
	IPXE      string
}

// DefaultLoaderPaths returns the locations used by the syslinux and ipxe
// packages on Fedora and RHEL.
func DefaultLoaderPaths() LoaderPaths {
	return LoaderPaths{
		BootImage: "/usr/share/syslinux/isolinux.bin",
		LDLinux:   "/usr/share/syslinux/ldlinux.c32",
		IPXE:      "/usr/share/ipxe/ipxe.lkrn",
	}
}

// Loader is the fixed set of boot loader binaries copied into every image.
type Loader struct {
	Version string

	// BootImage is the El Torito boot image, isolinux.bin.
	BootImage []byte
	// LDLinux is the isolinux core module.
	LDLinux []byte
	// IPXE is the iPXE kernel chain loaded by isolinux.
	IPXE []byte
}

// LoadLoader reads the loader binaries from paths.
func LoadLoader(paths LoaderPaths) (*Loader, error) {
	var err error
	l := &Loader{Version: paths.Version}
	files := []struct {
		path string
		data *[]byte
	}{
		{paths.BootImage, &l.BootImage},
		{paths.LDLinux, &l.LDLinux},
		{paths.IPXE, &l.IPXE},
	}
	for _, f := range files {
		if f.path == "" {
			return nil, fmt.Errorf("boot loader path not configured")
		}
		*f.data, err = os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("error reading boot loader: %v", err)
		}
	}
	if l.Version == "" {
		l.Version = l.digest()
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks that the loader can be embedded into an image.
func (l *Loader) Validate() error {
	if len(l.BootImage) < minBootImageSize {
		return fmt.Errorf("boot image too small: %d bytes, need at least %d", len(l.BootImage), minBootImageSize)
	}
	if len(l.BootImage) > maxBootImageSize {
		return fmt.Errorf("boot image too large: %d bytes, at most %d are supported", len(l.BootImage), maxBootImageSize)
	}
	if len(l.LDLinux) == 0 {
		return fmt.Errorf("ldlinux module is empty")
	}
	if len(l.IPXE) == 0 {
		return fmt.Errorf("ipxe kernel is empty")
	}
	return nil
}

func (l *Loader) digest() string {
	h := sha256.New()
	h.Write(l.BootImage)
	h.Write(l.LDLinux)
	h.Write(l.IPXE)
	return hex.EncodeToString(h.Sum(nil))[:12]
}
