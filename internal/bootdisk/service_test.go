package bootdisk_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osbuild/osbuild-bootdisk/internal/bootdisk"
	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
	"github.com/osbuild/osbuild-bootdisk/internal/iso"
	"github.com/osbuild/osbuild-bootdisk/internal/token"
)

var now = time.Date(2024, 1, 31, 17, 45, 12, 0, time.UTC)

// countingAssembler records every call made to the wrapped assembler.
type countingAssembler struct {
	*iso.Assembler
	calls   int
	scripts []ipxe.Script
	images  []*iso.Image
}

func (a *countingAssembler) Assemble(script ipxe.Script, name string) (*iso.Image, error) {
	a.calls++
	a.scripts = append(a.scripts, script)
	img, err := a.Assembler.Assemble(script, name)
	if err == nil {
		a.images = append(a.images, img)
	}
	return img, err
}

type failingAssembler struct{}

func (failingAssembler) Assemble(ipxe.Script, string) (*iso.Image, error) {
	return nil, &iso.AssemblyError{Op: "write", Err: errors.New("no space left on device")}
}

type fixture struct {
	service   *bootdisk.Service
	codec     *token.Codec
	assembler *countingAssembler
}

func testHosts(t *testing.T) *inventory.Memory {
	hosts, err := inventory.NewMemory(
		inventory.Host{
			ID:              "42",
			Name:            "node1.example.com",
			Architecture:    "x86_64",
			ProvisioningURL: "https://provision.example.com",
			Interface:       &inventory.Interface{MAC: "52:54:00:ab:cd:ef"},
			Boot: &inventory.BootConfig{
				KernelURL:  "https://repo.example.com/vmlinuz",
				InitrdURL:  "https://repo.example.com/initrd.img",
				KernelArgs: []string{"inst.ks=https://provision.example.com/unattended/provision"},
			},
		},
		inventory.Host{
			ID:   "43",
			Name: "orphan.example.com",
		},
	)
	require.NoError(t, err)
	return hosts
}

func testLoader() *iso.Loader {
	return &iso.Loader{
		Version:   "test",
		BootImage: bytes.Repeat([]byte{0xfa}, 2048),
		LDLinux:   []byte("ldlinux"),
		IPXE:      []byte("ipxe"),
	}
}

func newFixture(t *testing.T) *fixture {
	sources, err := ipxe.LoadTemplates("")
	require.NoError(t, err)
	renderer, err := ipxe.NewRenderer(sources)
	require.NoError(t, err)

	codec, err := token.New([]byte("0123456789abcdef0123456789abcdef"), 6*time.Hour, token.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	a, err := iso.NewAssembler(testLoader(), t.TempDir())
	require.NoError(t, err)
	assembler := &countingAssembler{Assembler: a}

	service, err := bootdisk.NewService(bootdisk.Config{ServerURL: "https://foreman.example.com:8443"}, testHosts(t), renderer, codec, assembler)
	require.NoError(t, err)
	return &fixture{service: service, codec: codec, assembler: assembler}
}

// readScript returns the script embedded into img.
func readScript(t *testing.T, img *iso.Image) string {
	f, err := img.Open()
	require.NoError(t, err)
	defer f.Close()
	script, err := iso.ReadScript(f)
	require.NoError(t, err)
	return string(script)
}

func TestGenerateGeneric(t *testing.T) {
	fx := newFixture(t)

	var path string
	err := fx.service.GenerateGeneric(context.Background(), func(img *iso.Image) error {
		path = img.Path()
		require.Equal(t, "bootdisk_foreman.example.com.iso", img.Name)

		script := readScript(t, img)
		assert.Contains(t, script, "https://foreman.example.com:8443/unattended/iPXE?mac=${net0/mac}")
		assert.NotContains(t, script, "token=")
		assert.NotContains(t, script, "host=")
		assert.NotContains(t, script, "42")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, fx.assembler.calls)

	// removed once the callback returned
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGenerateHost(t *testing.T) {
	fx := newFixture(t)

	err := fx.service.GenerateHost(context.Background(), "42", func(img *iso.Image) error {
		require.Equal(t, "node1.example.com.iso", img.Name)
		script := readScript(t, img)
		assert.Contains(t, script, "chain https://provision.example.com/unattended/iPXE?host=42")
		assert.NotContains(t, script, "token=")
		return nil
	})
	require.NoError(t, err)
}

func TestGenerateFullHost(t *testing.T) {
	fx := newFixture(t)

	suffix, err := fx.service.TokenSuffixFor(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, "_20240131_2345", suffix)

	err = fx.service.GenerateFullHost(context.Background(), "42", func(img *iso.Image) error {
		require.Equal(t, "node1.example.com"+suffix+".iso", img.Name)

		script := readScript(t, img)
		i := strings.Index(script, "token=")
		require.NotEqual(t, -1, i)
		raw := strings.Fields(script[i+len("token="):])[0]

		subject, err := fx.codec.Verify(raw)
		require.NoError(t, err)
		require.Equal(t, "42", subject)
		return nil
	})
	require.NoError(t, err)
}

func TestHostNotFound(t *testing.T) {
	fx := newFixture(t)
	called := false
	fn := func(*iso.Image) error {
		called = true
		return nil
	}

	err := fx.service.GenerateHost(context.Background(), "nope", fn)
	require.True(t, errors.Is(err, bootdisk.ErrHostNotFound), err)

	err = fx.service.GenerateFullHost(context.Background(), "nope", fn)
	require.True(t, errors.Is(err, bootdisk.ErrHostNotFound), err)

	_, err = fx.service.TokenSuffixFor(context.Background(), "nope")
	require.True(t, errors.Is(err, bootdisk.ErrHostNotFound), err)

	require.False(t, called)
	require.Zero(t, fx.assembler.calls)
}

func TestRenderErrorSkipsAssembly(t *testing.T) {
	fx := newFixture(t)

	// host 43 has no provisioning server
	err := fx.service.GenerateHost(context.Background(), "43", func(*iso.Image) error {
		t.Fatal("callback must not run")
		return nil
	})
	var renderErr *ipxe.RenderError
	require.True(t, errors.As(err, &renderErr), err)
	require.Zero(t, fx.assembler.calls)
}

func TestCallbackErrorStillRemovesImage(t *testing.T) {
	fx := newFixture(t)
	callbackErr := errors.New("client went away")

	var path string
	err := fx.service.GenerateHost(context.Background(), "42", func(img *iso.Image) error {
		path = img.Path()
		return callbackErr
	})
	require.Equal(t, callbackErr, err)
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestAssemblyError(t *testing.T) {
	sources, err := ipxe.LoadTemplates("")
	require.NoError(t, err)
	renderer, err := ipxe.NewRenderer(sources)
	require.NoError(t, err)
	codec, err := token.New([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	service, err := bootdisk.NewService(bootdisk.Config{ServerURL: "https://foreman.example.com"}, testHosts(t), renderer, codec, failingAssembler{})
	require.NoError(t, err)

	err = service.GenerateGeneric(context.Background(), func(*iso.Image) error { return nil })
	var assemblyErr *iso.AssemblyError
	require.True(t, errors.As(err, &assemblyErr), err)
}

func TestIdempotent(t *testing.T) {
	fx := newFixture(t)

	images := make([][]byte, 0, 2)
	for i := 0; i < 2; i++ {
		err := fx.service.GenerateHost(context.Background(), "42", func(img *iso.Image) error {
			data, err := os.ReadFile(img.Path())
			if err != nil {
				return err
			}
			images = append(images, data)
			return nil
		})
		require.NoError(t, err)
	}
	require.True(t, bytes.Equal(images[0], images[1]))
}

func TestBootInstructions(t *testing.T) {
	fx := newFixture(t)
	h, err := testHosts(t).Host(context.Background(), "42")
	require.NoError(t, err)

	script, err := fx.service.BootInstructions(h, "presented")
	require.NoError(t, err)
	require.Contains(t, string(script), "vmlinuz?token=presented")

	script, err = fx.service.BootInstructions(h, "")
	require.NoError(t, err)
	require.NotContains(t, string(script), "token=presented")
	require.Contains(t, string(script), "token=")
}

func TestNewServiceRejectsBadURL(t *testing.T) {
	_, err := bootdisk.NewService(bootdisk.Config{ServerURL: "not a url"}, testHosts(t), nil, nil, nil)
	require.Error(t, err)
}
