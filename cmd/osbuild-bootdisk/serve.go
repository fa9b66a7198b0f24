package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/osbuild/osbuild-bootdisk/internal/bootdiskapi"
	"github.com/osbuild/osbuild-bootdisk/internal/common"
)

const (
	apiSocketName     = "osbuild-bootdisk-api.socket"
	metricsSocketName = "osbuild-bootdisk-metrics.socket"
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve boot disks and boot instructions over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, config)
	},
}

type connectionConfig struct {
	CACertFile     string
	ServerKeyFile  string
	ServerCertFile string
}

// createTLSConfig asks for client certificates but does not require them.
// Clients without one are served as anonymous and left to the ACL.
func createTLSConfig(c *connectionConfig) (*tls.Config, error) {
	caCertPEM, err := os.ReadFile(c.CACertFile)
	if err != nil {
		return nil, err
	}

	roots := x509.NewCertPool()
	ok := roots.AppendCertsFromPEM(caCertPEM)
	if !ok {
		return nil, fmt.Errorf("failed to parse root certificate %s", c.CACertFile)
	}

	cert, err := tls.LoadX509KeyPair(c.ServerCertFile, c.ServerKeyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.VerifyClientCertIfGiven,
		ClientCAs:    roots,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// listen prefers sockets passed by systemd over the configured address.
func listen(listeners map[string][]net.Listener, socket, address string) (net.Listener, error) {
	if ls, exists := listeners[socket]; exists {
		if len(ls) != 1 {
			return nil, fmt.Errorf("the %s unit is misconfigured, it should contain exactly one socket", socket)
		}
		return ls[0], nil
	}
	if address == "" {
		return nil, nil
	}
	return net.Listen("tcp", address)
}

func initSentry(cfg *SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     common.BuildCommit,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %v", err)
	}
	logrus.Info("Sentry integration enabled")
	return nil
}

func serve(ctx context.Context, cfg *BootdiskConfigFile) error {
	if err := initSentry(&cfg.Sentry); err != nil {
		return err
	}
	defer sentry.Flush(2 * time.Second)

	c, err := newComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	acl, err := bootdiskapi.NewACL(cfg.ACL)
	if err != nil {
		return err
	}
	api, err := bootdiskapi.NewServer(c.service, c.hosts, c.codec, acl, bootdiskapi.ServerConfig{
		AllowedTypes:           cfg.AllowedTypes,
		SupportedArchitectures: cfg.SupportedArchitectures,
		TokenDuration:          cfg.tokenTTL(),
		LoaderVersion:          c.loader.Version,
		Sentry:                 cfg.Sentry.DSN != "",
	})
	if err != nil {
		return err
	}

	listeners, err := activation.ListenersWithNames()
	if err != nil {
		return fmt.Errorf("could not get listening sockets: %v", err)
	}

	apiListener, err := listen(listeners, apiSocketName, cfg.API.Listen)
	if err != nil {
		return err
	}
	if apiListener == nil {
		return errors.New("no api listener configured")
	}
	if cfg.API.CA != "" {
		tlsConfig, err := createTLSConfig(&connectionConfig{
			CACertFile:     cfg.API.CA,
			ServerKeyFile:  cfg.API.Key,
			ServerCertFile: cfg.API.Cert,
		})
		if err != nil {
			return fmt.Errorf("error creating TLS configuration: %v", err)
		}
		apiListener = tls.NewListener(apiListener, tlsConfig)
	}

	metricsListener, err := listen(listeners, metricsSocketName, cfg.Metrics.Listen)
	if err != nil {
		return err
	}

	servers := []*http.Server{{
		Handler:           api.Handler(bootdiskapi.BasePath),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	serving := []net.Listener{apiListener}
	if metricsListener != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second})
		serving = append(serving, metricsListener)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range servers {
		srv, l := servers[i], serving[i]
		g.Go(func() error {
			logrus.Infof("Listening on %s", l.Addr())
			if err := srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
