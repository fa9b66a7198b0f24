// Package ipxe renders the iPXE scripts embedded into boot disks.
//
// Every kind of boot disk has one text/template. The defaults are compiled
// into the binary and can be replaced file by file from a template
// directory. Templates are parsed once; a Renderer is immutable and safe for
// concurrent use.
package ipxe

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
)

//go:embed templates/*.ipxe
var defaultTemplates embed.FS

// Script is a rendered iPXE script.
type Script []byte

// TemplateName returns the file name the template for k is stored under.
func TemplateName(k Kind) string {
	return k.String() + ".ipxe"
}

// LoadTemplates returns the template sources for all kinds. Files found in
// dir replace the built-in defaults; dir may be empty.
func LoadTemplates(dir string) (map[Kind]string, error) {
	sources := make(map[Kind]string)
	for _, k := range Kinds() {
		data, err := fs.ReadFile(defaultTemplates, "templates/"+TemplateName(k))
		if err != nil {
			return nil, err
		}
		sources[k] = string(data)
	}
	if dir == "" {
		return sources, nil
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("error reading template directory: %v", err)
	}
	for _, k := range Kinds() {
		data, err := os.ReadFile(filepath.Join(dir, TemplateName(k)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("error reading %s template: %v", k, err)
		}
		sources[k] = string(data)
	}
	return sources, nil
}

type Renderer struct {
	templates map[Kind]*template.Template
}

// NewRenderer parses sources. Kinds without a source cannot be rendered.
func NewRenderer(sources map[Kind]string) (*Renderer, error) {
	r := &Renderer{templates: make(map[Kind]*template.Template)}
	for k, src := range sources {
		t, err := template.New(TemplateName(k)).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, &TemplateError{Kind: k, Err: err}
		}
		r.templates[k] = t
	}
	return r, nil
}

type genericData struct {
	ServerURL string
	ChainURL  string
}

type hostData struct {
	Host      *inventory.Host
	Interface *inventory.Interface
	ChainURL  string
}

type fullHostData struct {
	hostData
	KernelURL  string
	InitrdURL  string
	KernelArgs []string
}

// Render produces the script for c.
func (r *Renderer) Render(c Context) (Script, error) {
	var data interface{}
	var err error
	switch c := c.(type) {
	case Generic:
		data, err = genericScriptData(c)
	case Host:
		data, err = hostScriptData(KindHost, c.Host)
	case FullHost:
		data, err = fullHostScriptData(c)
	default:
		return nil, fmt.Errorf("unsupported boot context %T", c)
	}
	if err != nil {
		return nil, err
	}

	t, ok := r.templates[c.Kind()]
	if !ok {
		return nil, &TemplateError{Kind: c.Kind()}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, &TemplateError{Kind: c.Kind(), Err: err}
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	return Script(buf.Bytes()), nil
}

func genericScriptData(c Generic) (*genericData, error) {
	server, err := baseURL(c.ServerURL)
	if err != nil {
		return nil, &RenderError{Kind: KindGeneric, Reason: "server url: " + err.Error()}
	}
	return &genericData{
		ServerURL: server,
		ChainURL:  server + "/unattended/iPXE?mac=${net0/mac}",
	}, nil
}

func hostScriptData(kind Kind, h *inventory.Host) (*hostData, error) {
	if h == nil || h.ID == "" {
		return nil, &RenderError{Kind: kind, Reason: "no host given"}
	}
	if err := inventory.ValidateName(h.Name); err != nil {
		return nil, &RenderError{Kind: kind, HostID: h.ID, Reason: "host " + err.Error()}
	}
	if h.ProvisioningURL == "" {
		return nil, &RenderError{Kind: kind, HostID: h.ID, Reason: "host has no provisioning server"}
	}
	server, err := baseURL(h.ProvisioningURL)
	if err != nil {
		return nil, &RenderError{Kind: kind, HostID: h.ID, Reason: "provisioning url: " + err.Error()}
	}
	iface := h.Interface
	if iface == nil {
		iface = &inventory.Interface{}
	}
	return &hostData{
		Host:      h,
		Interface: iface,
		ChainURL:  server + "/unattended/iPXE?host=" + url.QueryEscape(h.ID),
	}, nil
}

func fullHostScriptData(c FullHost) (*fullHostData, error) {
	hd, err := hostScriptData(KindFullHost, c.Host)
	if err != nil {
		return nil, err
	}
	fail := func(reason string) error {
		return &RenderError{Kind: KindFullHost, HostID: c.Host.ID, Reason: reason}
	}
	if c.Token == "" {
		return nil, fail("no access token")
	}
	boot := c.Host.Boot
	if boot == nil || boot.KernelURL == "" {
		return nil, fail("host has no kernel url")
	}
	if boot.InitrdURL == "" {
		return nil, fail("host has no initrd url")
	}

	kernel, err := appendToken(boot.KernelURL, c.Token)
	if err != nil {
		return nil, fail("kernel url: " + err.Error())
	}
	initrd, err := appendToken(boot.InitrdURL, c.Token)
	if err != nil {
		return nil, fail("initrd url: " + err.Error())
	}
	args := make([]string, 0, len(boot.KernelArgs))
	for _, arg := range boot.KernelArgs {
		args = append(args, tokenizeArg(arg, c.Token))
	}

	return &fullHostData{
		hostData:   *hd,
		KernelURL:  kernel,
		InitrdURL:  initrd,
		KernelArgs: args,
	}, nil
}

// baseURL checks that s is an absolute http(s) URL and strips trailing
// slashes.
func baseURL(s string) (string, error) {
	if !isHTTPURL(s) {
		return "", fmt.Errorf("%q is not an absolute http(s) url", s)
	}
	return strings.TrimRight(s, "/"), nil
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// appendToken adds the token query parameter to s. The URL is edited as a
// string because iPXE variables like ${net0/mac} must survive unescaped.
func appendToken(s, tok string) (string, error) {
	if !isHTTPURL(s) {
		return "", fmt.Errorf("%q is not an absolute http(s) url", s)
	}
	fragment := ""
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s, fragment = s[:i], s[i:]
	}
	sep := "?"
	if strings.Contains(s, "?") {
		sep = "&"
		if strings.HasSuffix(s, "?") || strings.HasSuffix(s, "&") {
			sep = ""
		}
	}
	return s + sep + "token=" + url.QueryEscape(tok) + fragment, nil
}

// tokenizeArg appends the token to kernel arguments that are, or have as
// value, an absolute http(s) URL. Other arguments are returned unchanged.
func tokenizeArg(arg, tok string) string {
	if withToken, err := appendToken(arg, tok); err == nil {
		return withToken
	}
	key, value, ok := strings.Cut(arg, "=")
	if !ok {
		return arg
	}
	withToken, err := appendToken(value, tok)
	if err != nil {
		return arg
	}
	return key + "=" + withToken
}
