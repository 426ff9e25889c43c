package publish

import (
	"context"

	"github.com/TobiSchelling/lex/internal/mailer"
)

// Blogger posts by emailing rendered HTML to a Blogger mail-to-post address.
type Blogger struct {
	Address string
	Mailer  *mailer.Mailer
}

// NewBlogger returns a mail-to-post publisher.
func NewBlogger(address string, m *mailer.Mailer) *Blogger {
	return &Blogger{Address: address, Mailer: m}
}

func (b *Blogger) Platform() string { return "blogger" }

func (b *Blogger) Configured() bool {
	return b.Address != "" && b.Mailer.Configured()
}

// Publish returns "emailed"; Blogger does not report a post id.
func (b *Blogger) Publish(ctx context.Context, title, body string) (string, error) {
	if err := b.Mailer.SendMarkdown(ctx, []string{b.Address}, titleOrDefault(title, body), body); err != nil {
		return "", err
	}
	return "emailed", nil
}
