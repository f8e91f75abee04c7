package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders Default as a TOML file.
func Template() (string, error) {
	data, err := toml.Marshal(toFile(Default()))
	if err != nil {
		return "", fmt.Errorf("config template: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

func toFile(cfg Config) fileConfig {
	p := cfg.Protocol
	return fileConfig{
		Serial: fileSerial{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			Parity:      cfg.Serial.Parity,
			StopBits:    cfg.Serial.StopBits,
			ReadTimeout: cfg.Serial.ReadTimeout.String(),
		},
		Protocol: fileProtocol{
			MaxRetries:        p.MaxRetries,
			CompletionTimeout: p.CompletionTimeout.String(),
			DesyncTimeout:     p.DesyncTimeout.String(),
			ReadChunk:         p.ReadChunk,
			HistorySize:       p.HistorySize,
			TraceSize:         p.TraceSize,
			InboxBacklog:      p.InboxBacklog,
			RestartDelay:      p.Supervisor.InitialDelay.String(),
			RestartMaxDelay:   p.Supervisor.MaxDelay.String(),
			RestartMultiplier: p.Supervisor.Multiplier,
		},
		Diagnostics: fileDiagnostics{
			Enabled:     cfg.Diagnostics.Enabled,
			Addr:        cfg.Diagnostics.Addr,
			CorsOrigins: cfg.Diagnostics.CorsOrigins,
		},
		Log: fileLog{Level: cfg.LogLevel},
	}
}
