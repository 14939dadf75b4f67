package mail

import (
	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
)

const (
	DriverSES  = "ses"
	DriverSMTP = "smtp"
)

type MailConfig struct {
	Driver   string
	From     string
	SMTPHost string
	SMTPPort string
	Username string
	Password string
}

func NewMailConfig() *MailConfig {
	return &MailConfig{
		Driver:   env.GetEnv("MAIL_DRIVER", DriverSES),
		From:     env.GetEnv("MAIL_FROM", "noreply@crimata.com"),
		SMTPHost: env.GetEnv("MAIL_HOST", ""),
		SMTPPort: env.GetEnv("MAIL_PORT", "587"),
		Username: env.GetEnv("MAIL_USERNAME", ""),
		Password: env.GetEnv("MAIL_PASSWORD", ""),
	}
}
