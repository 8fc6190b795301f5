package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"gossip_membership/internal/dataType"
)

const configFile = "membership.yml"

type MainConfig struct {
	NodeID           string        `yaml:"node_id"`
	Host             string        `yaml:"host" validate:"required"`
	Port             int           `yaml:"port" validate:"min=1,max=65535"`
	IntroducerHost   string        `yaml:"introducer_host" validate:"required"`
	IntroducerPort   int           `yaml:"introducer_port" validate:"min=1,max=65535"`
	TGossip          time.Duration `yaml:"t_gossip" validate:"gt=0"`
	TUpdate          time.Duration `yaml:"t_update" validate:"gt=0,ltfield=TGossip"`
	TSuspect         time.Duration `yaml:"t_suspect" validate:"gtfield=TGossip"`
	TFail            time.Duration `yaml:"t_fail" validate:"gt=0"`
	TCleanup         time.Duration `yaml:"t_cleanup" validate:"gt=0"`
	Fanout           int           `yaml:"fanout" validate:"min=1"`
	SuspicionEnabled bool          `yaml:"suspicion_enabled"`
	MessageDropRate  float64       `yaml:"message_drop_rate" validate:"min=0,max=1"`
	ReceiveTimeout   time.Duration `yaml:"receive_timeout" validate:"gt=0"`
	JoinTimeout      time.Duration `yaml:"join_timeout" validate:"gt=0"`
	MaxDatagramSize  int           `yaml:"max_datagram_size" validate:"min=512,max=65507"`
	LogPath          string        `yaml:"log_path"`
	LogLevel         string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	HTTPPort         int           `yaml:"http_port" validate:"min=0,max=65535"`
	Interactive      bool          `yaml:"interactive"`
}

// DefaultConfig returns the settings used when no config file exists.
// Suspicion is off by default: Alive goes straight to Failed after TFail.
func DefaultConfig() MainConfig {
	return MainConfig{
		Host:            "localhost",
		Port:            8000,
		IntroducerHost:  "localhost",
		IntroducerPort:  8000,
		TGossip:         500 * time.Millisecond,
		TUpdate:         100 * time.Millisecond,
		TSuspect:        1 * time.Second,
		TFail:           2 * time.Second,
		TCleanup:        2 * time.Second,
		Fanout:          4,
		ReceiveTimeout:  1 * time.Second,
		JoinTimeout:     2 * time.Second,
		MaxDatagramSize: 65507,
		LogLevel:        "info",
	}
}

// LoadMainConfig reads <basePath>/config/membership.yml on top of the
// defaults. basePath defaults to the executable's directory. A missing file
// is not an error.
func LoadMainConfig(basePath string) (*MainConfig, error) {
	cfg := DefaultConfig()

	if basePath == "" {
		exePath, err := os.Executable()
		if err != nil {
			return nil, err
		}
		basePath = filepath.Dir(exePath)
	}
	configPath := filepath.Join(basePath, "config", configFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		data = nil
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	cfg.Normalize()
	return &cfg, nil
}

// Normalize fills generated values. It is idempotent.
func (c *MainConfig) Normalize() {
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = uuid.NewString()
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks ranges and the timer ordering the protocol relies on:
// the detector sweeps faster than gossip, and gossip runs more often than
// the suspicion timeout.
func (c *MainConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag()+paramSuffix(fe.Param()), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

func (c *MainConfig) SelfAddress() dataType.Address {
	return dataType.Address{Host: c.Host, Port: c.Port}
}

func (c *MainConfig) IntroducerAddress() dataType.Address {
	return dataType.Address{Host: c.IntroducerHost, Port: c.IntroducerPort}
}

// IsIntroducer reports whether this node is the well-known bootstrap node.
func (c *MainConfig) IsIntroducer() bool {
	return c.SelfAddress() == c.IntroducerAddress()
}

// SetIntroducer parses "host:port" into the introducer fields.
func (c *MainConfig) SetIntroducer(s string) error {
	addr, err := dataType.ParseAddress(s)
	if err != nil {
		return err
	}
	c.IntroducerHost = addr.Host
	c.IntroducerPort = addr.Port
	return nil
}
