package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds environment overrides. Unset variables leave settings alone.
type Env struct {
	SaveFolder   string        `env:"NREF_SAVE_FOLDER"`
	Relays       []string      `env:"NREF_RELAYS" envSeparator:","`
	Overwrite    *bool         `env:"NREF_OVERWRITE"`
	FetchTimeout time.Duration `env:"NREF_FETCH_TIMEOUT"`
	DBPath       string        `env:"NREF_DB"`
	// BackupFolders receive a copy of every save and delete.
	BackupFolders []string `env:"NREF_BACKUP_FOLDERS" envSeparator:","`
}

// ParseEnv loads overrides from the environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply returns s with the overrides in e. NREF_RELAYS replaces the relay
// list, every entry enabled.
func (e Env) Apply(s Settings) Settings {
	if e.SaveFolder != "" {
		s.SaveFolder = e.SaveFolder
	}
	if len(e.Relays) > 0 {
		relays := make([]Relay, 0, len(e.Relays))
		for _, u := range e.Relays {
			relays = append(relays, Relay{URL: u, Enabled: true})
		}
		s.Relays = relays
	}
	if e.Overwrite != nil {
		s.OverwriteExisting = *e.Overwrite
	}
	return s
}
