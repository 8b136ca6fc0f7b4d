package main

import (
	"fmt"
	"time"

	"github.com/instance-action-log/instance-action-log/internal/actionlog"
	"github.com/instance-action-log/instance-action-log/internal/audit"
	"github.com/instance-action-log/instance-action-log/internal/config"
)

// buildInterceptor wires the recorder and its shippers. A disabled audit
// section returns a nil interceptor so calls are forwarded without records.
// The returned MultiShipper is nil when no shipper is active.
func buildInterceptor(store actionlog.Store, cfg config.AuditConfig) (*actionlog.Interceptor, *audit.MultiShipper, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}

	policy, err := actionlog.ParseExtractionPolicy(cfg.OnExtractionError)
	if err != nil {
		return nil, nil, err
	}

	shippers, err := audit.NewMultiShipper(shipperConfigs(cfg.Shippers))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to configure audit shippers: %w", err)
	}

	var opts []actionlog.RecorderOption
	if shippers.Len() > 0 {
		opts = append(opts, actionlog.WithShipper(shippers))
	} else {
		shippers = nil
	}

	recorder := actionlog.NewRecorder(store, opts...)
	return actionlog.NewInterceptor(recorder, actionlog.WithExtractionPolicy(policy)), shippers, nil
}

// shipperConfigs converts the configuration file layout into audit shipper
// configs.
func shipperConfigs(in []config.AuditShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(in))
	for _, sc := range in {
		c := audit.ShipperConfig{Enabled: sc.Enabled, Type: sc.Type}
		if sc.Webhook != nil {
			c.Webhook = &audit.WebhookConfig{
				URL:     sc.Webhook.URL,
				Headers: sc.Webhook.Headers,
				Timeout: time.Duration(sc.Webhook.TimeoutSecs) * time.Second,
			}
		}
		if sc.File != nil {
			c.File = &audit.FileConfig{
				Path:       sc.File.Path,
				MaxSizeMB:  sc.File.MaxSizeMB,
				MaxBackups: sc.File.MaxBackups,
			}
		}
		if sc.Redis != nil {
			c.Redis = &audit.RedisConfig{
				Addr:     sc.Redis.Addr,
				Password: sc.Redis.Password,
				DB:       sc.Redis.DB,
				Stream:   sc.Redis.Stream,
				MaxLen:   sc.Redis.MaxLen,
			}
		}
		if sc.S3 != nil {
			c.S3 = &audit.S3Config{
				Bucket:          sc.S3.Bucket,
				Region:          sc.S3.Region,
				Prefix:          sc.S3.Prefix,
				Endpoint:        sc.S3.Endpoint,
				AccessKeyID:     sc.S3.AccessKeyID,
				SecretAccessKey: sc.S3.SecretAccessKey,
			}
		}
		out = append(out, c)
	}
	return out
}
