// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pdiddy/scholar-digest/pkg/types"
)

const envPrefix = "SCHOLAR_DIGEST"

// setDefaults registers every config key with its default so that
// environment overrides (SCHOLAR_DIGEST_STORE_PATH, ...) apply on Unmarshal.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mail.source", string(d.Mail.Source))
	v.SetDefault("mail.maildir", d.Mail.Maildir)
	v.SetDefault("mail.sender", d.Mail.Sender)
	v.SetDefault("mail.gmail_base_url", d.Mail.GmailBaseURL)
	v.SetDefault("mail.token_secret", d.Mail.TokenSecret)
	v.SetDefault("mail.timeout", d.Mail.Timeout)
	v.SetDefault("mail.user_agent", d.Mail.UserAgent)
	v.SetDefault("mail.max_retries", d.Mail.MaxRetries)

	v.SetDefault("extract.sentinel", d.Extract.Sentinel)
	v.SetDefault("extract.domain_marker", d.Extract.DomainMarker)
	v.SetDefault("extract.denylist", d.Extract.Denylist)

	v.SetDefault("store.path", d.Store.Path)

	v.SetDefault("pipeline.strategy", d.Pipeline.Strategy)
	v.SetDefault("pipeline.lookback_days", d.Pipeline.LookbackDays)
	v.SetDefault("pipeline.chunk_days", d.Pipeline.ChunkDays)
	v.SetDefault("pipeline.chunk_delay", d.Pipeline.ChunkDelay)

	v.SetDefault("metrics.textfile", d.Metrics.Textfile)

	v.SetDefault("secrets_dir", d.SecretsDir)
	v.SetDefault("log_level", d.LogLevel)
}

// loadConfig reads the config file, if any, and decodes the merged
// settings.
func loadConfig() (types.Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (types.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return types.Config{}, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	c := types.DefaultConfig()
	// The denylist default comes through viper; decoding onto a populated
	// slice would merge element-wise.
	c.Extract.Denylist = nil
	if err := v.Unmarshal(&c); err != nil {
		return types.Config{}, fmt.Errorf("decoding config: %w", err)
	}

	switch c.Mail.Source {
	case types.SourceMaildir, types.SourceGmail:
	default:
		return types.Config{}, fmt.Errorf("unknown mail source %q: want maildir or gmail", c.Mail.Source)
	}
	return c, nil
}
