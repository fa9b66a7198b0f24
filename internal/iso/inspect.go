package iso

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/diskfs/go-diskfs/filesystem/iso9660"
)

const (
	pvdSector       = 16
	maxDescriptors  = 32
	catalogEntryLen = 32

	descriptorBoot       = 0
	descriptorPrimary    = 1
	descriptorTerminator = 255

	elToritoID = "EL TORITO SPECIFICATION"
)

var (
	ErrNotISO      = errors.New("not an ISO 9660 image")
	ErrNotBootable = errors.New("no valid El Torito boot catalog")
)

// Layout is what a BIOS sees when booting an image.
type Layout struct {
	VolumeID     string
	VolumeBlocks uint32

	// BootCatalog is the sector of the boot catalog.
	BootCatalog uint32
	Platform    byte

	// Default entry of the boot catalog.
	Bootable    bool
	Emulation   byte
	LoadSegment uint16
	// LoadSize counts virtual 512 byte sectors.
	LoadSize uint16
	LoadRBA  uint32
}

// Inspect reads the volume descriptors and the El Torito boot catalog of an
// image.
func Inspect(r io.ReaderAt) (*Layout, error) {
	sector := make([]byte, blockSize)
	readSector := func(n uint32) error {
		_, err := r.ReadAt(sector, int64(n)*blockSize)
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: truncated at sector %d", ErrNotISO, n)
		}
		return err
	}

	if err := readSector(pvdSector); err != nil {
		return nil, err
	}
	if sector[0] != descriptorPrimary || string(sector[1:6]) != "CD001" {
		return nil, fmt.Errorf("%w: no primary volume descriptor", ErrNotISO)
	}
	layout := &Layout{
		VolumeID:     strings.TrimRight(string(sector[40:72]), " \x00"),
		VolumeBlocks: binary.LittleEndian.Uint32(sector[80:84]),
	}

	found := false
	for n := uint32(pvdSector + 1); n < pvdSector+maxDescriptors && !found; n++ {
		if err := readSector(n); err != nil {
			return nil, err
		}
		if string(sector[1:6]) != "CD001" {
			return nil, fmt.Errorf("%w: bad volume descriptor at sector %d", ErrNotISO, n)
		}
		switch sector[0] {
		case descriptorTerminator:
			return nil, fmt.Errorf("%w: no boot record", ErrNotBootable)
		case descriptorBoot:
			if string(bytes.TrimRight(sector[7:39], "\x00")) == elToritoID {
				layout.BootCatalog = binary.LittleEndian.Uint32(sector[0x47:0x4b])
				found = true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: no boot record", ErrNotBootable)
	}

	if err := readSector(layout.BootCatalog); err != nil {
		return nil, err
	}
	validation := sector[:catalogEntryLen]
	if validation[0] != 0x01 {
		return nil, fmt.Errorf("%w: bad validation entry header %#x", ErrNotBootable, validation[0])
	}
	if validation[0x1e] != 0x55 || validation[0x1f] != 0xaa {
		return nil, fmt.Errorf("%w: bad validation entry key", ErrNotBootable)
	}
	var sum uint16
	for i := 0; i < catalogEntryLen; i += 2 {
		sum += binary.LittleEndian.Uint16(validation[i : i+2])
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: validation entry checksum mismatch", ErrNotBootable)
	}
	layout.Platform = validation[1]

	entry := sector[catalogEntryLen : 2*catalogEntryLen]
	switch entry[0] {
	case 0x88:
		layout.Bootable = true
	case 0x00:
	default:
		return nil, fmt.Errorf("%w: bad default entry indicator %#x", ErrNotBootable, entry[0])
	}
	layout.Emulation = entry[1]
	layout.LoadSegment = binary.LittleEndian.Uint16(entry[2:4])
	layout.LoadSize = binary.LittleEndian.Uint16(entry[6:8])
	layout.LoadRBA = binary.LittleEndian.Uint32(entry[8:12])
	return layout, nil
}

func readFilesystem(f *os.File) (*iso9660.FileSystem, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	fs, err := iso9660.Read(f, info.Size(), 0, blockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotISO, err)
	}
	return fs, nil
}

// ReadFile returns the content of the file at p in the image.
func ReadFile(f *os.File, p string) ([]byte, error) {
	fs, err := readFilesystem(f)
	if err != nil {
		return nil, err
	}
	file, err := fs.OpenFile(p, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(file)
}

// ReadScript returns the iPXE script embedded into an image.
func ReadScript(f *os.File) ([]byte, error) {
	return ReadFile(f, ScriptPath)
}

// ListFiles returns the paths of all regular files in the image, sorted.
func ListFiles(f *os.File) ([]string, error) {
	fs, err := readFilesystem(f)
	if err != nil {
		return nil, err
	}
	var files []string
	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := fs.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			p := path.Join(dir, e.Name())
			if e.IsDir() {
				if err := walk(p); err != nil {
					return err
				}
				continue
			}
			files = append(files, p)
		}
		return nil
	}
	if err := walk("/"); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
