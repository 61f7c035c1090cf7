// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package mhttp

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

var (
	// ErrMissingKeyPair is returned when only one of the certificate and key files is set.
	ErrMissingKeyPair = errors.New("both certificate and key files are required for TLS")

	// ErrClientCAWithoutTLS is returned when a client CA is set without a server certificate.
	ErrClientCAWithoutTLS = errors.New("client CA requires a server certificate")

	// ErrInvalidClientCA is returned when the client CA file holds no PEM certificate.
	ErrInvalidClientCA = errors.New("no certificates found in client CA file")
)

// Config is the configuration of one proxy listener.
type Config struct {
	Host            string        `env:"HOST"             envDefault:""`
	Port            string        `env:"PORT"             envDefault:""`
	TargetHost      string        `env:"TARGET_HOST"      envDefault:"localhost"`
	TargetPort      string        `env:"TARGET_PORT"      envDefault:""`
	MaxMessageSize  int           `env:"MAX_MESSAGE_SIZE" envDefault:"1028"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT"     envDefault:"0s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CertFile        string        `env:"CERT_FILE"        envDefault:""`
	KeyFile         string        `env:"KEY_FILE"         envDefault:""`
	ClientCAFile    string        `env:"CLIENT_CA_FILE"   envDefault:""`

	// TLSConfig is built from the certificate files. Nil means plain TCP.
	TLSConfig *tls.Config `env:"-"`
}

// NewConfig parses a Config from the environment using opts, typically with a
// per-listener prefix, and loads its TLS material.
func NewConfig(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, err
	}

	tlsCfg, err := c.loadTLS()
	if err != nil {
		return Config{}, err
	}
	c.TLSConfig = tlsCfg

	return c, nil
}

func (c Config) loadTLS() (*tls.Config, error) {
	switch {
	case c.CertFile == "" && c.KeyFile == "":
		if c.ClientCAFile != "" {
			return nil, ErrClientCAWithoutTLS
		}
		return nil, nil
	case c.CertFile == "" || c.KeyFile == "":
		return nil, ErrMissingKeyPair
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	if c.ClientCAFile != "" {
		pem, err := os.ReadFile(c.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read client CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, ErrInvalidClientCA
		}
		tlsCfg.ClientCAs = pool
		tlsCfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsCfg, nil
}
