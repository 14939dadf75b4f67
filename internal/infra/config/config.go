package config

import (
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
)

type ProvisionConfig struct {
	// Domain is the apex under which every customer gets {slug}.{Domain}.
	Domain         string
	NamePrefix     string
	DatabasePrefix string
	StepTimeout    time.Duration
	// StaleAfter is how long a customer may sit in provisioning without a
	// write before teardown treats the run as abandoned.
	StaleAfter     time.Duration
}

func NewProvisionConfig() *ProvisionConfig {
	return &ProvisionConfig{
		Domain:         env.GetEnv("P_DOMAIN", "crimata.com"),
		NamePrefix:     env.GetEnv("P_NAME_PREFIX", "crimata"),
		DatabasePrefix: env.GetEnv("P_DB_PREFIX", "crimata_"),
		StepTimeout:    env.GetEnvDuration("P_STEP_TIMEOUT", 3*time.Minute),
		StaleAfter:     env.GetEnvDuration("P_STALE_AFTER", 30*time.Minute),
	}
}
