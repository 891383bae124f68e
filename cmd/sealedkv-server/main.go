// Command sealedkv-server runs the transactional key-value engine:
// recovers any prior durable state from its data directory, then serves
// clients over mutually-authenticated TLS until signalled to stop.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/coredao-org/sealedkv/engine"
	"github.com/coredao-org/sealedkv/log"
	"github.com/coredao-org/sealedkv/rtconfig"
)

var (
	certFileFlag = &cli.StringFlag{
		Name:     "tls-cert",
		Usage:    "server certificate, PEM encoded",
		EnvVars:  []string{"TLS_CERT"},
		Required: true,
	}
	keyFileFlag = &cli.StringFlag{
		Name:     "tls-key",
		Usage:    "server private key, PEM encoded",
		EnvVars:  []string{"TLS_KEY"},
		Required: true,
	}
	clientCAFlag = &cli.StringFlag{
		Name:     "client-ca",
		Usage:    "PEM bundle of CAs trusted to sign client certificates",
		EnvVars:  []string{"CLIENT_CA"},
		Required: true,
	}
	addrFlag = &cli.StringFlag{
		Name:    "addr",
		Usage:   "address to listen on",
		Value:   "0.0.0.0",
		EnvVars: []string{"ADDR"},
	}
)

func main() {
	app := &cli.App{
		Name:   "sealedkv-server",
		Usage:  "transactional in-memory key-value store for a trusted execution environment",
		Flags:  append([]cli.Flag{certFileFlag, keyFileFlag, clientCAFlag, addrFlag}, rtconfig.Flags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg := rtconfig.FromContext(c)

	cert, err := tls.LoadX509KeyPair(c.String(certFileFlag.Name), c.String(keyFileFlag.Name))
	if err != nil {
		return fmt.Errorf("loading server certificate: %w", err)
	}

	clientCAs, err := loadClientCAPool(c.String(clientCAFlag.Name))
	if err != nil {
		return fmt.Errorf("loading client CA bundle: %w", err)
	}

	e, err := engine.New(cfg, cert, &tls.Config{ClientCAs: clientCAs})
	if err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", c.String(addrFlag.Name), cfg.Port)
	e.Start(addr)
	log.Info("sealedkv-server: listening", "addr", addr, "datadir", cfg.DataDir)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("sealedkv-server: shutting down")
	e.Stop()
	return nil
}

func loadClientCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates parsed from %s", path)
	}
	return pool, nil
}
