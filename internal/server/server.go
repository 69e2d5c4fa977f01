package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/voltbridge/ocpp-gateway/internal/config"
	websocketManager "github.com/voltbridge/ocpp-gateway/internal/server/websocket"
	"golang.org/x/sync/errgroup"
)

const defTimeout = 120 * time.Second

type Router struct {
	*gin.Engine
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if strings.HasSuffix(req.URL.Path, "/") {
		req.URL.Path = filepath.Clean(req.URL.Path)
	}
	r.Engine.ServeHTTP(w, req)
}

// stationServer is one configured listener: a dual-stack server pair plus
// the TLS settings its security profile demands.
type stationServer struct {
	listener   config.Listener
	ipv4Server *http.Server
	ipv6Server *http.Server
	tlsConfig  *tls.Config
}

type Server struct {
	stationServers    []*stationServer
	metricsIPV4Server *http.Server
	metricsIPV6Server *http.Server
	stopped           atomic.Bool
	config            *config.Config
}

func NewServer(cfg *config.Config, manager *websocketManager.Manager, handler websocketManager.Handler) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.HTTP.PProf.Enabled {
		gin.SetMode(gin.DebugMode)
	}

	stationServers := make([]*stationServer, 0, len(cfg.Listeners))
	for _, listener := range cfg.Listeners {
		r := gin.New()
		r.RedirectTrailingSlash = false
		r.RedirectFixedPath = false

		skipContextPathRouter := Router{
			Engine: r,
		}

		if cfg.HTTP.PProf.Enabled {
			pprof.Register(r)
		}

		applyMiddleware(r, cfg, "gateway")
		applyRoutes(r, manager, handler, listener)

		tlsConfig, err := buildTLSConfig(listener)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config for listener %d: %w", listener.Port, err)
		}

		stationServers = append(stationServers, &stationServer{
			listener: listener,
			ipv4Server: &http.Server{
				Addr:              fmt.Sprintf("%s:%d", listener.IPV4Host, listener.Port),
				ReadHeaderTimeout: defTimeout,
				Handler:           &skipContextPathRouter,
			},
			ipv6Server: &http.Server{
				Addr:              fmt.Sprintf("[%s]:%d", listener.IPV6Host, listener.Port),
				ReadHeaderTimeout: defTimeout,
				Handler:           &skipContextPathRouter,
			},
			tlsConfig: tlsConfig,
		})
	}

	var metricsIPV4Server *http.Server
	var metricsIPV6Server *http.Server

	if cfg.HTTP.Metrics.Enabled {
		metricsRouter := gin.New()
		applyMiddleware(metricsRouter, cfg, "metrics")

		metricsRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
		metricsIPV4Server = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Metrics.IPV4Host, cfg.HTTP.Metrics.Port),
			ReadHeaderTimeout: defTimeout,
			WriteTimeout:      defTimeout,
			Handler:           metricsRouter,
		}
		metricsIPV6Server = &http.Server{
			Addr:              fmt.Sprintf("[%s]:%d", cfg.HTTP.Metrics.IPV6Host, cfg.HTTP.Metrics.Port),
			ReadHeaderTimeout: defTimeout,
			WriteTimeout:      defTimeout,
			Handler:           metricsRouter,
		}
	}

	return &Server{
		stationServers:    stationServers,
		metricsIPV4Server: metricsIPV4Server,
		metricsIPV6Server: metricsIPV6Server,
		config:            cfg,
	}, nil
}

// buildTLSConfig returns nil for the plaintext profiles. Profile 3 requires
// and verifies a client certificate at the handshake, so unauthenticated
// connections never reach the upgrade handler.
func buildTLSConfig(listener config.Listener) (*tls.Config, error) {
	if listener.SecurityProfile < config.SecurityProfileTLSBasicAuth {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(listener.TLSCert, listener.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if listener.SecurityProfile == config.SecurityProfileMutualTLS {
		caPEM, err := os.ReadFile(listener.ClientCA)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no certificates found in client CA bundle %s", listener.ClientCA)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsConfig, nil
}

func (s *Server) serve(waitGrp *sync.WaitGroup, server *http.Server, tlsConfig *tls.Config, network, label string) error {
	listener, err := net.Listen(network, server.Addr)
	if err != nil {
		return err
	}
	if tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}
	waitGrp.Add(1)
	go func() {
		defer waitGrp.Done()
		if err := server.Serve(listener); err != nil && !s.stopped.Load() {
			slog.Error("HTTP server error", "listener", label, "error", err.Error())
		}
	}()
	return nil
}

func (s *Server) Start() error {
	waitGrp := sync.WaitGroup{}
	for _, stationServer := range s.stationServers {
		if err := s.serve(&waitGrp, stationServer.ipv4Server, stationServer.tlsConfig, "tcp4", "station-ipv4"); err != nil {
			return err
		}
		if err := s.serve(&waitGrp, stationServer.ipv6Server, stationServer.tlsConfig, "tcp6", "station-ipv6"); err != nil {
			return err
		}
		slog.Info("Station listener started",
			"ipv4", stationServer.listener.IPV4Host,
			"ipv6", stationServer.listener.IPV6Host,
			"port", stationServer.listener.Port,
			"profile", stationServer.listener.SecurityProfile)
	}

	if s.config.HTTP.Metrics.Enabled {
		if err := s.serve(&waitGrp, s.metricsIPV4Server, nil, "tcp4", "metrics-ipv4"); err != nil {
			return err
		}
		if err := s.serve(&waitGrp, s.metricsIPV6Server, nil, "tcp6", "metrics-ipv6"); err != nil {
			return err
		}
		slog.Info("Metrics server started", "ipv4", s.config.HTTP.Metrics.IPV4Host, "ipv6", s.config.HTTP.Metrics.IPV6Host, "port", s.config.HTTP.Metrics.Port)
	}

	go func() {
		waitGrp.Wait()
	}()
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 240*time.Second)
	defer cancel()

	s.stopped.Store(true)

	errGrp := errgroup.Group{}
	for _, stationServer := range s.stationServers {
		errGrp.Go(func() error {
			return stationServer.ipv4Server.Shutdown(ctx)
		})
		errGrp.Go(func() error {
			return stationServer.ipv6Server.Shutdown(ctx)
		})
	}
	if s.metricsIPV4Server != nil {
		errGrp.Go(func() error {
			return s.metricsIPV4Server.Shutdown(ctx)
		})
	}
	if s.metricsIPV6Server != nil {
		errGrp.Go(func() error {
			return s.metricsIPV6Server.Shutdown(ctx)
		})
	}

	return errGrp.Wait()
}
