package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ha1tch/pgiris/internal/auth"
	"github.com/ha1tch/pgiris/internal/backend"
	"github.com/ha1tch/pgiris/internal/catalog"
	"github.com/ha1tch/pgiris/internal/listener"
	"github.com/ha1tch/pgiris/internal/translate"
	pgirislog "github.com/ha1tch/pgiris/pkg/log"
	"github.com/ha1tch/pgiris/pkg/tlsutil"
	"github.com/ha1tch/pgiris/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pgiris", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		addr = fs.String("addr", ":5432", "address to listen on for PostgreSQL wire protocol clients")

		mode = fs.String("mode", "network", "backend executor mode: network or embedded")
		dsn  = fs.String("dsn", "file::memory:?cache=shared", "database/sql DSN for the backend connection")
		driver = fs.String("driver", "sqlite3", "database/sql driver name registered for the backend")

		poolSize = fs.Int("pool-size", 50, "steady-state backend connection pool size")
		overflow = fs.Int("pool-overflow", 20, "additional connections allowed under burst load")

		clientSchema  = fs.String("client-schema", "public", "schema name clients address tables under")
		backendSchema = fs.String("backend-schema", "SQLUser", "backend namespace client-schema maps to")

		authMethod = fs.String("auth-method", "trust", "authentication method: trust, cleartext, scram-sha-256")
		tlsEnabled = fs.Bool("tls", false, "terminate TLS in-process using a generated self-signed certificate")

		logLevel  = fs.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat = fs.String("log-format", "text", "log format: text or json")

		shutdownGrace = fs.Duration("shutdown-grace", 30*time.Second, "time to wait for in-flight sessions during shutdown")

		showVersion = fs.Bool("version", false, "print version and exit")
	)

	fs.Usage = func() { printUsage(stderr) }

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(stdout, version.Full())
		return 0
	}

	logger := pgirislog.New(pgirislog.Config{
		DefaultLevel: parseLogLevel(*logLevel),
		Format:       parseLogFormat(*logFormat),
		Output:       stderr,
	})
	defer logger.Close()

	exec, err := buildExecutor(*mode, *driver, *dsn, *poolSize, *overflow, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error opening backend: %v\n", err)
		return 1
	}

	lcfg := listener.DefaultConfig()
	lcfg.Addr = *addr
	lcfg.ShutdownGrace = *shutdownGrace
	lcfg.Log = logger
	lcfg.Namespace = *clientSchema
	lcfg.NewExecutor = func() (backend.Executor, error) { return exec, nil }
	lcfg.CatalogGenerator = catalog.NewGenerator()
	lcfg.CatalogSource = backend.NewMetadataSource(exec, *clientSchema)

	lcfg.Translator = translate.DefaultConfig()
	lcfg.Translator.ClientSchema = *clientSchema
	lcfg.Translator.BackendSchema = *backendSchema

	lcfg.Auth = auth.DefaultConfig()
	lcfg.Auth.Method = auth.Method(*authMethod)
	lcfg.Auth.ServerVersion = version.ServerVersion
	if *tlsEnabled {
		tlsConfig, err := tlsutil.GenerateSelfSignedCert()
		if err != nil {
			fmt.Fprintf(stderr, "error generating TLS certificate: %v\n", err)
			return 1
		}
		lcfg.Auth.TLSConfig = tlsConfig
	}

	ln, err := listener.New(lcfg)
	if err != nil {
		fmt.Fprintf(stderr, "error creating listener: %v\n", err)
		return 1
	}

	if err := ln.Start(context.Background()); err != nil {
		fmt.Fprintf(stderr, "error starting listener: %v\n", err)
		return 1
	}

	logger.Backend().Info("pgiris started", "addr", *addr, "mode", *mode, "version", version.Version)
	fmt.Fprintf(stdout, "pgiris listening on %s (mode=%s, version=%s)\n", *addr, *mode, version.Version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Backend().Info("shutdown signal received", "signal", sig.String())
	fmt.Fprintln(stdout, "shutting down...")

	if err := ln.Stop(); err != nil {
		fmt.Fprintf(stderr, "error stopping listener: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "stopped")
	return 0
}

func buildExecutor(mode, driver, dsn string, poolSize, overflow int, logger *pgirislog.Logger) (backend.Executor, error) {
	switch mode {
	case "embedded":
		cfg := backend.DefaultEmbeddedConfig()
		cfg.Driver = driver
		cfg.DSN = dsn
		return backend.NewEmbeddedExecutor(cfg)
	default:
		cfg := backend.DefaultNetworkConfig()
		cfg.Driver = driver
		cfg.DSN = dsn
		cfg.PoolSize = poolSize
		cfg.Overflow = overflow
		cfg.Logger = logger
		return backend.NewNetworkExecutor(cfg)
	}
}

func parseLogLevel(s string) pgirislog.Level {
	switch s {
	case "debug":
		return pgirislog.LevelDebug
	case "warn":
		return pgirislog.LevelWarn
	case "error":
		return pgirislog.LevelError
	default:
		return pgirislog.LevelInfo
	}
}

func parseLogFormat(s string) pgirislog.Format {
	if s == "json" {
		return pgirislog.FormatJSON
	}
	return pgirislog.FormatText
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `pgiris - PostgreSQL wire protocol front end for InterSystems IRIS

Usage:
  pgiris [options]

`)
}
