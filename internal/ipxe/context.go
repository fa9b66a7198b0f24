package ipxe

import (
	"fmt"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
)

type Kind int

const (
	KindGeneric Kind = iota
	KindHost
	KindFullHost
)

var kindNames = map[Kind]string{
	KindGeneric:  "generic",
	KindHost:     "host",
	KindFullHost: "full_host",
}

// String returns the name used for the kind in settings and template file
// names.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown boot disk kind %q", s)
}

// Kinds lists all kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindGeneric, KindHost, KindFullHost}
}

// Context describes what a script is rendered for. It is implemented by
// Generic, Host and FullHost only.
type Context interface {
	Kind() Kind
	isContext()
}

// Generic scripts carry no host identity. The booted machine is identified
// by the provisioning server at ServerURL using its MAC address.
type Generic struct {
	ServerURL string
}

// Host scripts chain to the boot instructions of one host.
type Host struct {
	Host *inventory.Host
}

// FullHost scripts boot the host's installer directly. Token is appended to
// every URL in the script.
type FullHost struct {
	Host  *inventory.Host
	Token string
}

func (Generic) Kind() Kind  { return KindGeneric }
func (Host) Kind() Kind     { return KindHost }
func (FullHost) Kind() Kind { return KindFullHost }

func (Generic) isContext()  {}
func (Host) isContext()     {}
func (FullHost) isContext() {}
