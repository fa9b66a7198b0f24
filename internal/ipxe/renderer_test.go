package ipxe_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
)

func defaultRenderer(t *testing.T) *ipxe.Renderer {
	sources, err := ipxe.LoadTemplates("")
	require.NoError(t, err)
	r, err := ipxe.NewRenderer(sources)
	require.NoError(t, err)
	return r
}

func testHost() *inventory.Host {
	return &inventory.Host{
		ID:              "42",
		Name:            "node1.example.com",
		Architecture:    "x86_64",
		ProvisioningURL: "https://provision.example.com/",
		Interface:       &inventory.Interface{MAC: "52:54:00:ab:cd:ef"},
		Boot: &inventory.BootConfig{
			KernelURL: "http://repo.example.com/images/vmlinuz",
			InitrdURL: "http://repo.example.com/images/initrd.img?arch=x86_64",
			KernelArgs: []string{
				"inst.text",
				"inst.ks=https://provision.example.com/unattended/provision",
				"inst.stage2=http://repo.example.com/os/",
				"console=ttyS0,115200",
			},
		},
	}
}

func TestRenderGeneric(t *testing.T) {
	r := defaultRenderer(t)

	script, err := r.Render(ipxe.Generic{ServerURL: "https://foreman.example.com"})
	require.NoError(t, err)
	s := string(script)

	require.True(t, strings.HasPrefix(s, "#!ipxe\n"))
	require.Contains(t, s, "dhcp ")
	require.Contains(t, s, "chain https://foreman.example.com/unattended/iPXE?mac=${net0/mac}")
	require.NotContains(t, s, "token=")
	require.NotContains(t, s, "host=")

	_, err = r.Render(ipxe.Generic{})
	var renderErr *ipxe.RenderError
	require.True(t, errors.As(err, &renderErr))
	require.Equal(t, ipxe.KindGeneric, renderErr.Kind)
}

func TestRenderHost(t *testing.T) {
	r := defaultRenderer(t)
	h := testHost()

	script, err := r.Render(ipxe.Host{Host: h})
	require.NoError(t, err)
	s := string(script)

	require.Contains(t, s, "# Boot disk for node1.example.com")
	require.Contains(t, s, "dhcp ")
	require.NotContains(t, s, "set net0/ip")
	require.Contains(t, s, "chain https://provision.example.com/unattended/iPXE?host=42")
	require.NotContains(t, s, "token=")
	require.NotContains(t, s, "kernel ")
}

func TestRenderHostStaticNetwork(t *testing.T) {
	r := defaultRenderer(t)
	h := testHost()
	h.Interface = &inventory.Interface{
		MAC:     "52:54:00:ab:cd:ef",
		IP:      "192.168.122.10",
		Netmask: "255.255.255.0",
		Gateway: "192.168.122.1",
	}

	for _, c := range []ipxe.Context{ipxe.Host{Host: h}, ipxe.FullHost{Host: h, Token: "tok"}} {
		script, err := r.Render(c)
		require.NoError(t, err)
		s := string(script)

		assert.Contains(t, s, "set net0/ip 192.168.122.10\n")
		assert.Contains(t, s, "set net0/netmask 255.255.255.0\n")
		assert.Contains(t, s, "set net0/gateway 192.168.122.1\n")
		assert.NotContains(t, s, "set dns")
		assert.Contains(t, s, "ifopen net0")
		assert.NotContains(t, s, "dhcp ")
	}
}

func TestRenderHostWithoutInterface(t *testing.T) {
	r := defaultRenderer(t)
	h := testHost()
	h.Interface = nil

	script, err := r.Render(ipxe.Host{Host: h})
	require.NoError(t, err)
	require.Contains(t, string(script), "dhcp ")
}

func TestRenderFullHost(t *testing.T) {
	r := defaultRenderer(t)

	script, err := r.Render(ipxe.FullHost{Host: testHost(), Token: "aaa.bbb.ccc"})
	require.NoError(t, err)
	s := string(script)

	require.Contains(t, s, "kernel http://repo.example.com/images/vmlinuz?token=aaa.bbb.ccc "+
		"inst.text "+
		"inst.ks=https://provision.example.com/unattended/provision?token=aaa.bbb.ccc "+
		"inst.stage2=http://repo.example.com/os/?token=aaa.bbb.ccc "+
		"console=ttyS0,115200 || goto boot_failed\n")
	require.Contains(t, s, "initrd http://repo.example.com/images/initrd.img?arch=x86_64&token=aaa.bbb.ccc || goto boot_failed\n")
	require.Contains(t, s, "boot || goto boot_failed\n")
	require.NotContains(t, s, "chain ")

	// every url in the script carries the token
	for _, field := range strings.Fields(s) {
		if _, value, ok := strings.Cut(field, "="); ok && strings.HasPrefix(value, "http") {
			field = value
		}
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			assert.Contains(t, field, "token=aaa.bbb.ccc", field)
		}
	}
}

func TestRenderFullHostMissingData(t *testing.T) {
	r := defaultRenderer(t)

	cases := map[string]func(h *inventory.Host) ipxe.Context{
		"no token": func(h *inventory.Host) ipxe.Context {
			return ipxe.FullHost{Host: h}
		},
		"no boot config": func(h *inventory.Host) ipxe.Context {
			h.Boot = nil
			return ipxe.FullHost{Host: h, Token: "t"}
		},
		"no initrd": func(h *inventory.Host) ipxe.Context {
			h.Boot.InitrdURL = ""
			return ipxe.FullHost{Host: h, Token: "t"}
		},
		"relative kernel": func(h *inventory.Host) ipxe.Context {
			h.Boot.KernelURL = "/vmlinuz"
			return ipxe.FullHost{Host: h, Token: "t"}
		},
		"no provisioning server": func(h *inventory.Host) ipxe.Context {
			h.ProvisioningURL = ""
			return ipxe.FullHost{Host: h, Token: "t"}
		},
		"name with newline": func(h *inventory.Host) ipxe.Context {
			h.Name = "node1\nshell"
			return ipxe.Host{Host: h}
		},
	}
	for name, makeContext := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Render(makeContext(testHost()))
			require.True(t, errors.Is(err, ipxe.ErrRender), err)
			var renderErr *ipxe.RenderError
			require.True(t, errors.As(err, &renderErr))
			require.Equal(t, "42", renderErr.HostID)
		})
	}
}

func TestRenderHostMissingData(t *testing.T) {
	r := defaultRenderer(t)

	_, err := r.Render(ipxe.Host{})
	require.True(t, errors.Is(err, ipxe.ErrRender))

	h := testHost()
	h.ProvisioningURL = ""
	_, err = r.Render(ipxe.Host{Host: h})
	require.True(t, errors.Is(err, ipxe.ErrRender))
}

func TestMissingTemplate(t *testing.T) {
	r, err := ipxe.NewRenderer(map[ipxe.Kind]string{
		ipxe.KindGeneric: "#!ipxe\nchain {{ .ChainURL }}\n",
	})
	require.NoError(t, err)
	_, err = r.Render(ipxe.Generic{ServerURL: "https://foreman.example.com"})
	require.NoError(t, err)

	_, err = r.Render(ipxe.Host{Host: testHost()})
	require.True(t, errors.Is(err, ipxe.ErrTemplate), err)
	var templateErr *ipxe.TemplateError
	require.True(t, errors.As(err, &templateErr))
	require.Equal(t, ipxe.KindHost, templateErr.Kind)
}

func TestBrokenTemplates(t *testing.T) {
	_, err := ipxe.NewRenderer(map[ipxe.Kind]string{ipxe.KindHost: "{{ .Host"})
	require.True(t, errors.Is(err, ipxe.ErrTemplate))

	r, err := ipxe.NewRenderer(map[ipxe.Kind]string{ipxe.KindGeneric: "{{ .NoSuchField }}"})
	require.NoError(t, err)
	_, err = r.Render(ipxe.Generic{ServerURL: "http://foreman"})
	require.True(t, errors.Is(err, ipxe.ErrTemplate))
}

func TestTemplateDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "host.ipxe"), []byte("#!ipxe\nchain {{ .ChainURL }}"), 0600))

	sources, err := ipxe.LoadTemplates(dir)
	require.NoError(t, err)
	r, err := ipxe.NewRenderer(sources)
	require.NoError(t, err)

	script, err := r.Render(ipxe.Host{Host: testHost()})
	require.NoError(t, err)
	require.Equal(t, "#!ipxe\nchain https://provision.example.com/unattended/iPXE?host=42\n", string(script))

	// kinds without an override keep the default
	script, err = r.Render(ipxe.Generic{ServerURL: "https://foreman.example.com"})
	require.NoError(t, err)
	require.Contains(t, string(script), "Generic boot disk")

	_, err = ipxe.LoadTemplates(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestDeterministic(t *testing.T) {
	r := defaultRenderer(t)
	c := ipxe.FullHost{Host: testHost(), Token: "t"}

	a, err := r.Render(c)
	require.NoError(t, err)
	b, err := r.Render(c)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestKinds(t *testing.T) {
	for _, k := range ipxe.Kinds() {
		parsed, err := ipxe.ParseKind(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}
	_, err := ipxe.ParseKind("subnet")
	require.Error(t, err)
}
