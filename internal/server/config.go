package server

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	Bind    string `mapstructure:"bind"`
	Proxy   bool   `mapstructure:"proxy"`
	SSLCert string `mapstructure:"sslcert"`
	SSLKey  string `mapstructure:"sslkey"`

	MetricsEnabled bool `mapstructure:"metrics"`

	RateLimitRequests int           `mapstructure:"rateLimitRequests"`
	RateLimitWindow   time.Duration `mapstructure:"rateLimitWindow"`
}

func (Config) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("bind", "127.0.0.1:8080", "address/port/socket to serve http")
	if err := viper.BindPFlag("bind", cmd.PersistentFlags().Lookup("bind")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("proxy", false, "allow reverse proxies (trust X-Forwarded-For)")
	if err := viper.BindPFlag("proxy", cmd.PersistentFlags().Lookup("proxy")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("sslcert", "", "path to the SSL cert")
	if err := viper.BindPFlag("sslcert", cmd.PersistentFlags().Lookup("sslcert")); err != nil {
		return err
	}

	cmd.PersistentFlags().String("sslkey", "", "path to the SSL key")
	if err := viper.BindPFlag("sslkey", cmd.PersistentFlags().Lookup("sslkey")); err != nil {
		return err
	}

	cmd.PersistentFlags().Bool("metrics", true, "expose a /metrics endpoint")
	if err := viper.BindPFlag("metrics", cmd.PersistentFlags().Lookup("metrics")); err != nil {
		return err
	}

	cmd.PersistentFlags().Int("rate-limit-requests", 120, "max requests per window per client IP on /hls*")
	if err := viper.BindPFlag("rateLimitRequests", cmd.PersistentFlags().Lookup("rate-limit-requests")); err != nil {
		return err
	}

	cmd.PersistentFlags().Duration("rate-limit-window", time.Minute, "window over which rate-limit-requests is enforced")
	if err := viper.BindPFlag("rateLimitWindow", cmd.PersistentFlags().Lookup("rate-limit-window")); err != nil {
		return err
	}

	return nil
}

func (c *Config) Set() {
	if err := viper.Unmarshal(c); err != nil {
		log.Panic().Msg("unable to unmarshal config structure")
	}
}
