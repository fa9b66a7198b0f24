// Package iso packs iPXE scripts into bootable ISO 9660 images.
//
// The image layout is the one isolinux expects:
//
//	/ISOLINUX/ISOLINUX.BIN  El Torito boot image (no emulation, boot info table)
//	/ISOLINUX/BOOT.CAT      boot catalog
//	/ISOLINUX/LDLINUX.C32   isolinux core module
//	/ISOLINUX/ISOLINUX.CFG  boots IPXE.KRN with the script as initrd
//	/ISOLINUX/IPXE.KRN      iPXE
//	/ISOLINUX/SCRIPT.IPXE   the rendered script
//
// Only BIOS boot is supported; no EFI boot entries are written.
package iso

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/diskfs/go-diskfs/filesystem/iso9660"
	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
)

const (
	VolumeID = "BOOTDISK"

	loaderDir   = "ISOLINUX"
	bootImage   = "ISOLINUX.BIN"
	bootCatalog = "BOOT.CAT"
	ldlinux     = "LDLINUX.C32"
	ipxeKernel  = "IPXE.KRN"
	isolinuxCfg = "ISOLINUX.CFG"
	scriptFile  = "SCRIPT.IPXE"

	// ScriptPath is where the script is stored inside the image.
	ScriptPath = "/" + loaderDir + "/" + scriptFile

	blockSize = 2048
	// primary volume descriptor sector and the offset of its four dates:
	// creation, modification, expiration and effective
	pvdDatesOffset = 813
	pvdDateCount   = 4
	// 4 virtual sectors of 512 bytes, what isolinux expects
	bootLoadSize = 4
)

var isolinuxConfig = fmt.Sprintf(`DEFAULT ipxe
PROMPT 0
TIMEOUT 0
LABEL ipxe
  KERNEL %s
  INITRD %s
`, ipxeKernel, scriptFile)

// Epoch is the modification time recorded for every file in the image.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Finalize walks the workspace after changing the working directory of the
// process, so only one image can be finalized at a time.
var finalizeMu sync.Mutex

// AssemblyError is returned for any failure while writing an image.
type AssemblyError struct {
	Op  string
	Err error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("error assembling boot image: %s: %v", e.Op, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

type Assembler struct {
	loader *Loader
	tmpDir string
}

// NewAssembler returns an assembler writing its workspaces and images to
// tmpDir, or the default temporary directory if tmpDir is empty.
func NewAssembler(loader *Loader, tmpDir string) (*Assembler, error) {
	if loader == nil {
		return nil, fmt.Errorf("no boot loader given")
	}
	if err := loader.Validate(); err != nil {
		return nil, err
	}
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	// Finalize changes the working directory of the process, relative
	// paths would resolve elsewhere while it runs
	tmpDir, err := filepath.Abs(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("cannot use temporary directory: %v", err)
	}
	info, err := os.Stat(tmpDir)
	if err != nil {
		return nil, fmt.Errorf("cannot use temporary directory: %v", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("temporary directory %s is not a directory", tmpDir)
	}
	return &Assembler{loader: loader, tmpDir: tmpDir}, nil
}

func (a *Assembler) Loader() *Loader {
	return a.loader
}

// Assemble writes a bootable image containing script. The caller owns the
// returned image and must Close it.
func (a *Assembler) Assemble(script ipxe.Script, name string) (*Image, error) {
	workspace, err := os.MkdirTemp(a.tmpDir, "bootdisk-workspace-")
	if err != nil {
		return nil, &AssemblyError{Op: "create workspace", Err: err}
	}
	// Finalize removes the workspace on success only
	defer os.RemoveAll(workspace)

	if err := a.populate(workspace, script); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(a.tmpDir, "bootdisk-*.iso")
	if err != nil {
		return nil, &AssemblyError{Op: "create image file", Err: err}
	}
	img := &Image{Name: name, path: f.Name()}
	ok := false
	defer func() {
		if !ok {
			f.Close()
			img.Close()
		}
	}()

	if err := finalize(f, workspace); err != nil {
		return nil, err
	}
	if err := stampVolumeDates(f); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, &AssemblyError{Op: "sync image", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		return nil, &AssemblyError{Op: "stat image", Err: err}
	}
	img.size = info.Size()
	if err := f.Close(); err != nil {
		return nil, &AssemblyError{Op: "close image", Err: err}
	}
	ok = true

	logrus.WithFields(logrus.Fields{
		"image": name,
		"size":  img.size,
	}).Debug("Assembled boot image")
	return img, nil
}

func (a *Assembler) populate(workspace string, script ipxe.Script) error {
	dir := filepath.Join(workspace, loaderDir)
	if err := os.Mkdir(dir, 0700); err != nil {
		return &AssemblyError{Op: "create loader directory", Err: err}
	}
	files := []struct {
		name string
		data []byte
	}{
		{bootImage, a.loader.BootImage},
		{ldlinux, a.loader.LDLinux},
		{ipxeKernel, a.loader.IPXE},
		{isolinuxCfg, []byte(isolinuxConfig)},
		{scriptFile, script},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0600); err != nil {
			return &AssemblyError{Op: "write " + f.name, Err: err}
		}
	}

	// directory entries carry the modification times of the workspace, the
	// directories are touched last as writing files updates them
	err := filepath.WalkDir(workspace, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		return os.Chtimes(p, Epoch, Epoch)
	})
	if err == nil {
		err = os.Chtimes(dir, Epoch, Epoch)
	}
	if err == nil {
		err = os.Chtimes(workspace, Epoch, Epoch)
	}
	if err != nil {
		return &AssemblyError{Op: "set timestamps", Err: err}
	}
	return nil
}

func finalize(f *os.File, workspace string) error {
	filesystem, err := iso9660.Create(f, 0, 0, blockSize, workspace)
	if err != nil {
		return &AssemblyError{Op: "create filesystem", Err: err}
	}

	finalizeMu.Lock()
	defer finalizeMu.Unlock()
	err = filesystem.Finalize(iso9660.FinalizeOptions{
		VolumeIdentifier: VolumeID,
		ElTorito: &iso9660.ElTorito{
			BootCatalog: "/" + loaderDir + "/" + bootCatalog,
			Platform:    iso9660.BIOS,
			Entries: []*iso9660.ElToritoEntry{
				{
					Platform:  iso9660.BIOS,
					Emulation: iso9660.NoEmulation,
					BootFile:  "/" + loaderDir + "/" + bootImage,
					BootTable: true,
					LoadSize:  bootLoadSize,
				},
			},
		},
	})
	if err != nil {
		return &AssemblyError{Op: "finalize filesystem", Err: err}
	}
	return nil
}

// decDateTime encodes t in the 17 byte ISO 9660 volume descriptor format:
// digits for year to hundredths of a second, then the offset from UTC in
// 15 minute units.
func decDateTime(t time.Time) []byte {
	t = t.UTC()
	b := []byte(t.Format("20060102150405"))
	b = append(b, fmt.Sprintf("%02d", t.Nanosecond()/1e7)...)
	return append(b, 0)
}

// stampVolumeDates replaces the dates Finalize takes from the clock with
// Epoch, so the image only depends on the loader and the script.
func stampVolumeDates(f *os.File) error {
	date := decDateTime(Epoch)
	dates := make([]byte, 0, pvdDateCount*len(date))
	for i := 0; i < pvdDateCount; i++ {
		dates = append(dates, date...)
	}
	if _, err := f.WriteAt(dates, pvdSector*blockSize+pvdDatesOffset); err != nil {
		return &AssemblyError{Op: "write volume dates", Err: err}
	}
	return nil
}
