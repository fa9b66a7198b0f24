package bootdiskapi

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/osbuild/osbuild-bootdisk/internal/inventory"
	"github.com/osbuild/osbuild-bootdisk/internal/ipxe"
	"github.com/osbuild/osbuild-bootdisk/internal/iso"
	"github.com/osbuild/osbuild-bootdisk/internal/prometheus"
	"github.com/osbuild/osbuild-bootdisk/internal/token"
)

type apiHandlers struct {
	server *Server
}

type Help struct {
	ImageTypes []string `json:"image_types"`
	// TokenDuration is given in minutes.
	TokenDuration int    `json:"token_duration"`
	LoaderVersion string `json:"loader_version"`
}

// Filenames lists the download names of a host's images. Label is the short
// host name menus show next to them.
type Filenames struct {
	Label    string `json:"label"`
	Host     string `json:"host"`
	FullHost string `json:"full_host,omitempty"`
}

func (h *apiHandlers) GetHelp(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Help{
		ImageTypes:    h.server.enabledTypes(),
		TokenDuration: int(h.server.config.TokenDuration.Minutes()),
		LoaderVersion: h.server.config.LoaderVersion,
	})
}

func (h *apiHandlers) GetErrorList(ctx echo.Context) error {
	page := 0
	var err error
	if p := ctx.QueryParam("page"); p != "" {
		page, err = strconv.Atoi(p)
		if err != nil {
			return HTTPError(ErrorInvalidPageParam)
		}
	}

	size := 100
	if p := ctx.QueryParam("size"); p != "" {
		size, err = strconv.Atoi(p)
		if err != nil {
			return HTTPError(ErrorInvalidSizeParam)
		}
	}

	return ctx.JSON(http.StatusOK, APIErrorList(page, size, ctx))
}

func (h *apiHandlers) GetError(ctx echo.Context) error {
	errorId, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return HTTPError(ErrorInvalidErrorId)
	}

	apiError := APIError(ServiceErrorCode(errorId), nil, ctx)
	// If the service error wasn't found, it's a 404 in this instance
	if apiError.Id == fmt.Sprintf("%d", ErrorServiceErrorNotFound) {
		return HTTPError(ErrorErrorNotFound)
	}
	return ctx.JSON(http.StatusOK, apiError)
}

func (h *apiHandlers) GetGeneric(ctx echo.Context) error {
	if err := h.server.authorize(ctx, ipxe.KindGeneric, ""); err != nil {
		return err
	}
	prometheus.DownloadRequests.WithLabelValues(ipxe.KindGeneric.String()).Inc()

	err := h.server.service.GenerateGeneric(ctx.Request().Context(), func(img *iso.Image) error {
		return stream(ctx, img)
	})
	return generationError(err)
}

func (h *apiHandlers) GetHost(ctx echo.Context) error {
	if _, err := h.hostFor(ctx, ipxe.KindHost); err != nil {
		return err
	}
	prometheus.DownloadRequests.WithLabelValues(ipxe.KindHost.String()).Inc()

	err := h.server.service.GenerateHost(ctx.Request().Context(), ctx.Param("host"), func(img *iso.Image) error {
		return stream(ctx, img)
	})
	return generationError(err)
}

func (h *apiHandlers) GetFullHost(ctx echo.Context) error {
	if _, err := h.hostFor(ctx, ipxe.KindFullHost); err != nil {
		return err
	}
	prometheus.DownloadRequests.WithLabelValues(ipxe.KindFullHost.String()).Inc()

	err := h.server.service.GenerateFullHost(ctx.Request().Context(), ctx.Param("host"), func(img *iso.Image) error {
		return stream(ctx, img)
	})
	return generationError(err)
}

// GetFilenames reports the names host images would be downloaded under right
// now, without generating them.
func (h *apiHandlers) GetFilenames(ctx echo.Context) error {
	host, err := h.hostFor(ctx, ipxe.KindHost)
	if err != nil {
		return err
	}
	names := Filenames{Label: host.ShortName(), Host: host.Name + ".iso"}
	if h.server.Enabled(ipxe.KindFullHost) {
		suffix, err := h.server.service.TokenSuffixFor(ctx.Request().Context(), host.ID)
		if err != nil {
			return generationError(err)
		}
		names.FullHost = host.Name + suffix + ".iso"
	}
	return ctx.JSON(http.StatusOK, names)
}

// GetBootInstructions answers the chain request of a booted image with the
// full host script. The host is identified by a token, its id or the mac
// address of the booting interface, in this order.
func (h *apiHandlers) GetBootInstructions(ctx echo.Context) error {
	var host *inventory.Host
	var err error

	tok := ctx.QueryParam("token")
	switch {
	case tok != "":
		host, err = h.verifiedHost(ctx, tok)
	case ctx.QueryParam("host") != "":
		host, err = h.server.hosts.Host(ctx.Request().Context(), ctx.QueryParam("host"))
	case ctx.QueryParam("mac") != "":
		host, err = h.server.hosts.HostByMAC(ctx.Request().Context(), ctx.QueryParam("mac"))
	default:
		return HTTPError(ErrorMissingHostParam)
	}
	if err != nil {
		return lookupError(err)
	}

	script, err := h.server.service.BootInstructions(host, tok)
	if err != nil {
		return generationError(err)
	}
	return ctx.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, script)
}

func (h *apiHandlers) verifiedHost(ctx echo.Context, tok string) (*inventory.Host, error) {
	id, err := h.server.tokens.Verify(tok)
	if err != nil {
		prometheus.TokenVerified(verificationResult(err))
		ctx.Logger().Warnf("Rejected boot instructions request: %v", err)
		return nil, tokenError(err)
	}
	prometheus.TokenVerified("valid")
	return h.server.hosts.Host(ctx.Request().Context(), id)
}

// hostFor looks up the host named in the path and applies the gates of
// host scoped downloads.
func (h *apiHandlers) hostFor(ctx echo.Context, k ipxe.Kind) (*inventory.Host, error) {
	id := ctx.Param("host")
	if err := h.server.authorize(ctx, k, id); err != nil {
		return nil, err
	}
	host, err := h.server.hosts.Host(ctx.Request().Context(), id)
	if err != nil {
		return nil, lookupError(err)
	}
	if !h.server.downloadable(host) {
		return nil, HTTPError(ErrorUnsupportedArchitecture)
	}
	return host, nil
}

func lookupError(err error) error {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, inventory.ErrHostNotFound):
		return HTTPErrorWithInternal(ErrorHostNotFound, err)
	default:
		return HTTPErrorWithInternal(ErrorInventoryFailure, err)
	}
}

func verificationResult(err error) string {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "expired"
	case errors.Is(err, token.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}

// stream sends img as an attachment.
func stream(ctx echo.Context, img *iso.Image) error {
	f, err := img.Open()
	if err != nil {
		return HTTPErrorWithInternal(ErrorStreamingFailed, err)
	}
	defer f.Close()

	header := ctx.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": img.Name}))
	header.Set(echo.HeaderContentLength, strconv.FormatInt(img.Size(), 10))
	return ctx.Stream(http.StatusOK, "application/x-iso9660-image", f)
}
