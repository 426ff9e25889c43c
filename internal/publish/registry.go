package publish

import (
	"time"

	"github.com/TobiSchelling/lex/internal/config"
	"github.com/TobiSchelling/lex/internal/mailer"
)

// DefaultRegistry builds every platform publisher from cfg. Credentials are
// read from the environment variables cfg names; unset credentials leave a
// publisher registered but not Configured.
func DefaultRegistry(cfg *config.Config, m *mailer.Mailer) *Registry {
	timeout := time.Duration(cfg.Publish.TimeoutSeconds) * time.Second
	p := cfg.Platforms

	return NewRegistry(
		NewLinkedIn(config.Env(p.LinkedIn.TokenEnv), timeout),
		NewDevTo(config.Env(p.DevTo.APIKeyEnv), p.DevTo.Tags, timeout),
		NewHashnode(config.Env(p.Hashnode.APIKeyEnv), config.Env(p.Hashnode.PublicationIDEnv), p.Hashnode.Tags, timeout),
		NewMedium(config.Env(p.Medium.TokenEnv), p.Medium.Tags, timeout),
		NewBlogger(config.Env(p.Blogger.AddressEnv), m),
		NewTelegram(config.Env(p.Telegram.TokenEnv), config.Env(p.Telegram.ChatIDEnv), timeout),
		NewQuaily(config.Env(p.Quaily.APIKeyEnv), p.Quaily.BaseURL, p.Quaily.Channel, timeout),
	)
}
