// Package bootdiskapi serves boot disk downloads and the boot instructions
// full host images chain to.
package bootdiskapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/gobwas/glob"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/osbuild/osbuild-bootdisk/internal/bootdisk"
	"github.com/osbuild/osbuild-bootdisk/internal/common"
	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
	"github.com/osbuild/osbuild-bootdisk/internal/prometheus"
)

// BasePath is where the API is mounted by default.
const BasePath = "/api/bootdisk/v1"

// SubnetType is accepted in AllowedTypes but no image kind serves it.
const SubnetType = "subnet"

// Verifier checks tokens presented to the boot instructions endpoint and
// returns the host id they were issued for.
type Verifier interface {
	Verify(raw string) (string, error)
}

type ServerConfig struct {
	// AllowedTypes lists the enabled image types by name. Empty enables all
	// kinds.
	AllowedTypes []string
	// SupportedArchitectures holds glob patterns of host architectures host
	// images are offered for. Empty allows every architecture.
	SupportedArchitectures []string
	// TokenDuration is reported by the help endpoint.
	TokenDuration time.Duration
	// LoaderVersion identifies the boot loader embedded into images.
	LoaderVersion string
	// Sentry enables the sentry middleware. The client must be initialized
	// by the caller.
	Sentry bool
}

// Server represents the state of the boot disk API.
type Server struct {
	service *bootdisk.Service
	hosts   inventory.Inventory
	tokens  Verifier
	authz   Authorizer
	config  ServerConfig

	allowed map[string]bool
	arches  []glob.Glob
}

func NewServer(service *bootdisk.Service, hosts inventory.Inventory, tokens Verifier, authz Authorizer, config ServerConfig) (*Server, error) {
	s := &Server{
		service: service,
		hosts:   hosts,
		tokens:  tokens,
		authz:   authz,
		config:  config,
		allowed: map[string]bool{},
	}
	if s.authz == nil {
		s.authz = &ACL{}
	}

	types := config.AllowedTypes
	if len(types) == 0 {
		for _, k := range ipxe.Kinds() {
			types = append(types, k.String())
		}
	}
	for _, t := range types {
		if _, err := ipxe.ParseKind(t); err != nil && t != SubnetType {
			return nil, fmt.Errorf("unknown image type %q in allowed types", t)
		}
		s.allowed[t] = true
	}

	for _, p := range config.SupportedArchitectures {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid architecture pattern %q: %v", p, err)
		}
		s.arches = append(s.arches, g)
	}
	return s, nil
}

// Handler returns the API mounted under path and the boot instructions
// endpoint under /unattended.
func (s *Server) Handler(path string) http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = s.HTTPErrorHandler
	e.Pre(common.OperationIDMiddleware)
	e.Use(common.ExternalIDMiddleware)
	e.Use(common.LoggerMiddleware)
	e.Use(middleware.Recover())
	if s.config.Sentry {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
		e.Use(sentryScope)
	}
	e.Logger = common.Logger()

	handler := apiHandlers{
		server: s,
	}

	g := e.Group(path, prometheus.MetricsMiddleware)
	g.GET("/generic", handler.GetGeneric)
	g.GET("/hosts/:host", handler.GetHost)
	g.GET("/hosts/:host/full", handler.GetFullHost)
	g.GET("/hosts/:host/filenames", handler.GetFilenames)
	g.GET("/help", handler.GetHelp)
	g.GET("/errors", handler.GetErrorList)
	g.GET("/errors/:id", handler.GetError)

	e.GET("/unattended/iPXE", handler.GetBootInstructions, prometheus.MetricsMiddleware)

	return e
}

// Enabled reports whether images of kind k may be downloaded.
func (s *Server) Enabled(k ipxe.Kind) bool {
	return s.allowed[k.String()]
}

// enabledTypes returns the allowed type names in kind order.
func (s *Server) enabledTypes() []string {
	types := []string{}
	for _, k := range ipxe.Kinds() {
		if s.Enabled(k) {
			types = append(types, k.String())
		}
	}
	if s.allowed[SubnetType] {
		types = append(types, SubnetType)
	}
	return types
}

// downloadable reports whether host images are offered for h. Hosts
// without an architecture are always served.
func (s *Server) downloadable(h *inventory.Host) bool {
	if len(s.arches) == 0 || h.Architecture == "" {
		return true
	}
	for _, g := range s.arches {
		if g.Match(h.Architecture) {
			return true
		}
	}
	return false
}

// authorize gates a download of kind k. target is the host id for host
// images.
func (s *Server) authorize(c echo.Context, k ipxe.Kind, target string) error {
	if !s.Enabled(k) {
		return HTTPError(ErrorImageTypeDisabled)
	}
	if !s.authz.Allowed(DownloadAction(k), target, c) {
		if Identity(c) == Anonymous {
			return HTTPError(ErrorUnauthenticated)
		}
		return HTTPError(ErrorUnauthorized)
	}
	return nil
}

// sentryScope tags events with the request identifiers.
func sentryScope(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if hub := sentryecho.GetHubFromContext(c); hub != nil {
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetTag("operation_id", common.OperationID(c.Request().Context()))
				scope.SetUser(sentry.User{Username: Identity(c)})
			})
		}
		return next(c)
	}
}
