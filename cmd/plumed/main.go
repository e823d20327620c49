// Command plumed is a small mail sink: it accepts SMTP connections, checks
// clients against DNS blocklists, and stores each message to a maildir plus
// a MessagePack event journal. It can also run as a single-shot session
// over stdin/stdout for inetd-style invocation.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synqronlabs/plume"
	"github.com/synqronlabs/plume/dnsbl"
	"github.com/synqronlabs/plume/store"
)

// mailState is the composite pipeline state: maildir file plus journal entry.
type mailState = plume.Pair[store.File, store.Entry]

// mailHandler stores messages to the maildir and the journal, and rejects
// clients listed on a configured blocklist at HELO time.
type mailHandler struct {
	plume.Tee2[store.File, store.Entry, *store.MailStore, *store.Journal]

	checker *dnsbl.Checker
	log     *slog.Logger
}

func (h *mailHandler) Helo(remote net.IP, domain string) plume.Response {
	if h.checker == nil || remote == nil {
		return plume.ResponseOK("Ok")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if blocked, zone := h.checker.Blocked(ctx, remote); blocked {
		h.log.Warn("client on blocklist",
			slog.String("remote", remote.String()),
			slog.String("zone", zone))
		return plume.ResponseTransactionFailed("Denied: listed on " + zone)
	}
	if ok, err := h.checker.ForwardConfirmed(ctx, remote); err == nil && !ok {
		// Missing FCrDNS is logged, not rejected.
		h.log.Info("no forward-confirmed rDNS", slog.String("remote", remote.String()))
	}
	return plume.ResponseOK("Ok")
}

func (h *mailHandler) Mail(remote net.IP, helo, from string) plume.Response {
	return plume.ResponseOK("Ok")
}

func (h *mailHandler) Rcpt(to string) plume.Response {
	return plume.ResponseOK("Ok")
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML config file")
		addr        = flag.String("addr", "", "listen address")
		hostname    = flag.String("hostname", "", "hostname announced to clients")
		tlsCert     = flag.String("cert", "", "TLS certificate file (enables STARTTLS)")
		tlsKey      = flag.String("key", "", "TLS key file")
		maildir     = flag.String("maildir", "", "directory for stored messages")
		journalDir  = flag.String("journal", "", "directory for message journals")
		blocklists  = flag.String("blocklists", "", "comma-separated DNS blocklist zones")
		metricsAddr = flag.String("metrics-addr", "", "address for the Prometheus /metrics endpoint")
		pipe        = flag.Bool("pipe", false, "serve a single session on stdin/stdout")
		remoteIP    = flag.String("remote-ip", "", "client IP for -pipe mode")
		logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags override the config file.
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *hostname != "" {
		cfg.Hostname = *hostname
	}
	if *tlsCert != "" {
		cfg.TLSCert = *tlsCert
	}
	if *tlsKey != "" {
		cfg.TLSKey = *tlsKey
	}
	if *maildir != "" {
		cfg.Maildir = *maildir
	}
	if *journalDir != "" {
		cfg.JournalDir = *journalDir
	}
	if *blocklists != "" {
		cfg.Blocklists = strings.Split(*blocklists, ",")
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = filepath.Join(cfg.Maildir, "journal")
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var checker *dnsbl.Checker
	if len(cfg.Blocklists) > 0 {
		checker = dnsbl.NewChecker(dnsbl.CheckerConfig{Zones: cfg.Blocklists})
	}

	var tlsConfig *tls.Config
	if cfg.TLSCert != "" && cfg.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			logger.Error("loading TLS key pair", slog.Any("error", err))
			os.Exit(1)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	mailStore := store.NewMailStore(cfg.Maildir, cfg.Hostname)
	journal := store.NewJournal(cfg.JournalDir)
	factory := func() *mailHandler {
		return &mailHandler{
			Tee2: plume.Tee2[store.File, store.Entry, *store.MailStore, *store.Journal]{
				First:  mailStore,
				Second: journal,
			},
			checker: checker,
			log:     logger,
		}
	}

	if *pipe {
		runPipe(cfg, tlsConfig, factory, *remoteIP, logger)
		return
	}

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	server, err := plume.NewServer[mailState](plume.ServerConfig{
		Addr:           cfg.Addr,
		Hostname:       cfg.Hostname,
		TLSConfig:      tlsConfig,
		MaxConnections: cfg.MaxConnections,
		MaxMessageSize: cfg.MaxMessageSize,
		Logger:         logger,
	}, factory)
	if err != nil {
		logger.Error("server setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	if err := server.ListenAndServe(); err != plume.ErrServerClosed {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// runPipe serves exactly one session over stdin/stdout. The transport cannot
// expose a peer address, so -remote-ip supplies one for the blocklist check.
func runPipe(cfg Config, tlsConfig *tls.Config, factory func() *mailHandler, remoteIP string, logger *slog.Logger) {
	var remote net.IP
	if remoteIP != "" {
		remote = net.ParseIP(remoteIP)
		if remote == nil {
			logger.Error("invalid -remote-ip", slog.String("value", remoteIP))
			os.Exit(1)
		}
	}

	session := plume.NewSession[mailState](plume.Stdio{}, factory(), plume.SessionConfig{
		Hostname:       cfg.Hostname,
		RemoteIP:       remote,
		TLSConfig:      tlsConfig,
		MaxMessageSize: cfg.MaxMessageSize,
		Logger:         logger,
	})
	if err := session.Serve(); err != nil {
		logger.Error("session failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
