// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const Prefix = "OFFGRID"

type Config struct {
	STUNServers      []string      `envconfig:"STUN_SERVERS" default:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302,stun:stun3.l.google.com:19302,stun:stun4.l.google.com:19302" validate:"dive,required"`
	SignalAddr       string        `envconfig:"SIGNAL_ADDR" default:":7946" validate:"required"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn warning error"`
	Label            string        `envconfig:"DATA_CHANNEL_LABEL" default:"data" validate:"required,max=64"`
	ReplayWindow     int           `envconfig:"REPLAY_WINDOW" default:"4096" validate:"min=16,max=1048576"`
	DisplayName      string        `envconfig:"DISPLAY_NAME" default:"peer" validate:"required,max=64"`
	HandshakeTimeout time.Duration `envconfig:"HANDSHAKE_TIMEOUT" default:"2m" validate:"gt=0"`
}

var validate = validator.New()

// Load reads envFile (or ./.env when empty) into the environment without
// overriding variables that are already set, then processes OFFGRID_*
// variables. A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	var err error
	if envFile == "" {
		err = godotenv.Load()
	} else {
		err = godotenv.Load(envFile)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
