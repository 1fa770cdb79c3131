package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"github.com/turtacn/sigparse/pkg/errors"
)

// SecurityConfig holds the SASL and TLS settings shared by readers and
// writers.
type SecurityConfig struct {
	SASLEnabled   bool
	SASLMechanism string
	SASLUsername  string
	SASLPassword  string
	TLSEnabled    bool
	TLSCertPath   string
}

func (s SecurityConfig) validate() error {
	if s.SASLEnabled {
		if s.SASLMechanism == "" {
			return errors.New(errors.ErrCodeValidation, "SASLMechanism required")
		}
		if s.SASLUsername == "" || s.SASLPassword == "" {
			return errors.New(errors.ErrCodeValidation, "SASL credentials required")
		}
	}
	if s.TLSEnabled && s.TLSCertPath == "" {
		return errors.New(errors.ErrCodeValidation, "TLSCertPath required")
	}
	return nil
}

func (s SecurityConfig) tlsConfig() (*tls.Config, error) {
	if !s.TLSEnabled {
		return nil, nil
	}
	caCert, err := os.ReadFile(s.TLSCertPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read TLS CA certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, errors.New(errors.ErrCodeValidation, "no certificates found in TLS CA file")
	}
	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (s SecurityConfig) mechanism() (sasl.Mechanism, error) {
	if !s.SASLEnabled {
		return nil, nil
	}
	var (
		mech sasl.Mechanism
		err  error
	)
	switch s.SASLMechanism {
	case "PLAIN":
		mech = plain.Mechanism{Username: s.SASLUsername, Password: s.SASLPassword}
	case "SCRAM-SHA-256":
		mech, err = scram.Mechanism(scram.SHA256, s.SASLUsername, s.SASLPassword)
	case "SCRAM-SHA-512":
		mech, err = scram.Mechanism(scram.SHA512, s.SASLUsername, s.SASLPassword)
	default:
		return nil, errors.Newf(errors.ErrCodeValidation, "unsupported SASL mechanism %q", s.SASLMechanism)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create SASL mechanism")
	}
	return mech, nil
}
