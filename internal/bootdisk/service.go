// Package bootdisk generates boot disks for the three supported kinds:
// generic, host and full host.
//
// Images only live for the duration of an ImageFunc call. The service
// removes the temporary file when the callback returns, whatever happens
// inside it.
package bootdisk

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
	"github.com/osbuild/osbuild-bootdisk/internal/iso"
	"github.com/osbuild/osbuild-bootdisk/internal/prometheus"
	"github.com/osbuild/osbuild-bootdisk/internal/token"
)

var ErrHostNotFound = inventory.ErrHostNotFound

// ImageFunc consumes an image, typically by streaming it to a client. The
// image is removed after the function returns.
type ImageFunc func(img *iso.Image) error

type Renderer interface {
	Render(c ipxe.Context) (ipxe.Script, error)
}

type Assembler interface {
	Assemble(script ipxe.Script, name string) (*iso.Image, error)
}

type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
	Expiry() time.Time
}

type Config struct {
	// ServerURL is the provisioning server generic images chain to.
	ServerURL string
}

type Service struct {
	serverURL  string
	serverHost string
	hosts      inventory.Inventory
	renderer   Renderer
	tokens     TokenIssuer
	assembler  Assembler
}

func NewService(cfg Config, hosts inventory.Inventory, renderer Renderer, tokens TokenIssuer, assembler Assembler) (*Service, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid server url %q", cfg.ServerURL)
	}
	return &Service{
		serverURL:  cfg.ServerURL,
		serverHost: u.Hostname(),
		hosts:      hosts,
		renderer:   renderer,
		tokens:     tokens,
		assembler:  assembler,
	}, nil
}

// GenericImageName is the file name suggested for generic images.
func (s *Service) GenericImageName() string {
	return "bootdisk_" + s.serverHost + ".iso"
}

func (s *Service) GenerateGeneric(ctx context.Context, fn ImageFunc) error {
	return s.generate(ipxe.Generic{ServerURL: s.serverURL}, s.GenericImageName(), nil, fn)
}

func (s *Service) GenerateHost(ctx context.Context, id string, fn ImageFunc) error {
	h, err := s.lookup(ctx, ipxe.KindHost, id)
	if err != nil {
		return err
	}
	return s.generate(ipxe.Host{Host: h}, h.Name+".iso", h, fn)
}

func (s *Service) GenerateFullHost(ctx context.Context, id string, fn ImageFunc) error {
	h, err := s.lookup(ctx, ipxe.KindFullHost, id)
	if err != nil {
		return err
	}
	tok, exp, err := s.issue(h.ID)
	if err != nil {
		prometheus.ImageFailed(ipxe.KindFullHost.String(), "token")
		return err
	}
	return s.generate(ipxe.FullHost{Host: h, Token: tok}, h.Name+token.Suffix(exp)+".iso", h, fn)
}

// TokenSuffixFor returns the file name suffix of a full host image
// generated for the host right now.
func (s *Service) TokenSuffixFor(ctx context.Context, id string) (string, error) {
	if _, err := s.lookup(ctx, ipxe.KindFullHost, id); err != nil {
		return "", err
	}
	return token.Suffix(s.tokens.Expiry()), nil
}

// BootInstructions renders the full host script a host fetches over the
// network. A new token is issued when tok is empty.
func (s *Service) BootInstructions(h *inventory.Host, tok string) (ipxe.Script, error) {
	if tok == "" {
		var err error
		tok, _, err = s.issue(h.ID)
		if err != nil {
			return nil, err
		}
	}
	script, err := s.renderer.Render(ipxe.FullHost{Host: h, Token: tok})
	if err != nil {
		return nil, fmt.Errorf("error rendering boot instructions for host %s: %w", h.ID, err)
	}
	return script, nil
}

func (s *Service) issue(id string) (string, time.Time, error) {
	tok, exp, err := s.tokens.Issue(id)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error issuing token for host %s: %w", id, err)
	}
	prometheus.TokensIssued.Inc()
	return tok, exp, nil
}

func (s *Service) lookup(ctx context.Context, kind ipxe.Kind, id string) (*inventory.Host, error) {
	h, err := s.hosts.Host(ctx, id)
	if err != nil {
		if errors.Is(err, inventory.ErrHostNotFound) {
			prometheus.ImageFailed(kind.String(), "not_found")
		}
		return nil, fmt.Errorf("error looking up host %s: %w", id, err)
	}
	return h, nil
}

func (s *Service) generate(c ipxe.Context, name string, h *inventory.Host, fn ImageFunc) error {
	kind := c.Kind().String()
	log := logrus.WithFields(logrus.Fields{"kind": kind, "image": name})
	if h != nil {
		log = log.WithField("host", h.ID)
	}

	observe := prometheus.ObserveImage(kind)
	script, err := s.renderer.Render(c)
	if err != nil {
		prometheus.ImageFailed(kind, "render")
		log.WithError(err).Warn("Failed to render boot disk script")
		return fmt.Errorf("error rendering %s boot disk: %w", kind, err)
	}
	img, err := s.assembler.Assemble(script, name)
	if err != nil {
		prometheus.ImageFailed(kind, "assembly")
		log.WithError(err).Error("Failed to assemble boot disk")
		return fmt.Errorf("error generating %s boot disk: %w", kind, err)
	}
	defer func() {
		if err := img.Close(); err != nil {
			log.WithError(err).Warn("Failed to remove boot disk")
		}
	}()
	duration := observe()
	prometheus.ImageGenerated(kind, img.Size())
	log.WithFields(logrus.Fields{"size": img.Size(), "duration": duration}).Info("Generated boot disk")

	return fn(img)
}
