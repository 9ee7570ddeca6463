package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Serial      SerialConfig      `mapstructure:"serial"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Firmware    FirmwareConfig    `mapstructure:"firmware"`
	Boards      BoardsConfig      `mapstructure:"boards"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SerialConfig struct {
	BaudRate         int           `mapstructure:"baud_rate"`
	ScanInterval     time.Duration `mapstructure:"scan_interval"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	HandshakeRetries int           `mapstructure:"handshake_retries"`
	ApplyTimeout     time.Duration `mapstructure:"apply_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
}

type CalibrationConfig struct {
	MinSamples        int `mapstructure:"min_samples"`
	MinDistinctValues int `mapstructure:"min_distinct_values"`
}

type FirmwareConfig struct {
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
}

type BoardsConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_port", 4000)
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("serial.baud_rate", 115200)
	viper.SetDefault("serial.scan_interval", "2s")
	viper.SetDefault("serial.handshake_timeout", "1s")
	viper.SetDefault("serial.handshake_retries", 3)
	viper.SetDefault("serial.apply_timeout", "1s")
	viper.SetDefault("serial.poll_interval", "50ms")
	viper.SetDefault("serial.reconnect_backoff", "30s")

	viper.SetDefault("calibration.min_samples", 10)
	viper.SetDefault("calibration.min_distinct_values", 3)

	viper.SetDefault("firmware.upload_timeout", "120s")

	viper.SetDefault("boards.search_paths", []string{"configs/boards"})

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PANELCORE")

	if err := viper.ReadInConfig(); err != nil {
		// A missing file falls back to defaults; a broken file does not.
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
