// Package inventory resolves host identifiers to the host records a boot disk
// is generated for.
//
// The provisioning system owns the records; this package only defines the
// lookup boundary and a few backends for it.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"unicode"
)

var ErrHostNotFound = errors.New("host not found")

// Inventory looks up host records. Implementations must be safe for
// concurrent use.
type Inventory interface {
	// Host returns the record for the given identifier or ErrHostNotFound.
	Host(ctx context.Context, id string) (*Host, error)
	// HostByMAC returns the host owning the interface with the given
	// hardware address or ErrHostNotFound.
	HostByMAC(ctx context.Context, mac string) (*Host, error)
}

// Store is an Inventory whose records can be managed locally.
type Store interface {
	Inventory
	// Add validates h and stores it, replacing any record with the same
	// identifier.
	Add(ctx context.Context, h Host) error
	// Remove deletes the record for id, if any.
	Remove(ctx context.Context, id string) error
}

// Host is the part of a provisioning host record needed to build boot disks.
type Host struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Architecture tag, e.g. x86_64. Used to decide whether boot disks are
	// offered for the host at all.
	Architecture string `json:"architecture,omitempty"`

	// ProvisioningURL is the base URL of the provisioning server assigned
	// to the host.
	ProvisioningURL string `json:"provisioning_url,omitempty"`

	Interface *Interface  `json:"interface,omitempty"`
	Boot      *BootConfig `json:"boot,omitempty"`
}

// Interface is the primary network interface of a host. Only MAC is
// required; when IP is empty the interface is configured with DHCP.
type Interface struct {
	MAC     string `json:"mac"`
	IP      string `json:"ip,omitempty"`
	Netmask string `json:"netmask,omitempty"`
	Gateway string `json:"gateway,omitempty"`
	DNS     string `json:"dns,omitempty"`
}

// Static returns true if the interface carries a static address.
func (i *Interface) Static() bool {
	return i != nil && i.IP != ""
}

// BootConfig holds the install parameters embedded into full host images.
type BootConfig struct {
	KernelURL  string   `json:"kernel_url"`
	InitrdURL  string   `json:"initrd_url"`
	KernelArgs []string `json:"kernel_args,omitempty"`
}

// ShortName returns the host name up to the first dot.
func (h *Host) ShortName() string {
	return strings.SplitN(h.Name, ".", 2)[0]
}

// Validate checks the invariants every stored record must satisfy.
func (h *Host) Validate() error {
	if h.ID == "" {
		return errors.New("host id must not be empty")
	}
	if err := ValidateName(h.Name); err != nil {
		return fmt.Errorf("host %s: %w", h.ID, err)
	}
	if h.Interface != nil {
		if _, err := NormalizeMAC(h.Interface.MAC); err != nil {
			return fmt.Errorf("host %s: %w", h.ID, err)
		}
		if h.Interface.IP != "" && net.ParseIP(h.Interface.IP) == nil {
			return fmt.Errorf("host %s: invalid ip address %q", h.ID, h.Interface.IP)
		}
	}
	return nil
}

// ValidateName checks that a host name is safe to embed into boot scripts
// and file names.
func ValidateName(name string) error {
	if name == "" {
		return errors.New("name must not be empty")
	}
	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) || r == '/' {
			return fmt.Errorf("invalid character %q in name %q", r, name)
		}
	}
	return nil
}

// NormalizeMAC returns the canonical lower-case, colon separated form of a
// hardware address.
func NormalizeMAC(mac string) (string, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return "", fmt.Errorf("invalid mac address %q: %w", mac, err)
	}
	return hw.String(), nil
}
