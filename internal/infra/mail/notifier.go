package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

//go:embed templates
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

type Notifier struct {
	sender Sender
	domain string
}

func NewNotifier(sender Sender, domain string) *Notifier {
	return &Notifier{sender: sender, domain: domain}
}

// SendWelcome mails the hub URL and its passphrase to a new customer.
func (n *Notifier) SendWelcome(ctx context.Context, email, slug, passphrase string) error {
	data := WelcomeData{
		URL:        "https://" + slug + "." + n.domain,
		Passphrase: passphrase,
	}
	body, err := Render(data)
	if err != nil {
		return err
	}
	return n.sender.SendMail(ctx, []string{email}, data.GetSubject(), body)
}

func Render(data MailData) (Body, error) {
	name := string(data.GetMailType())

	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return Body{}, fmt.Errorf("error rendering text, %w", err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name+".html", data); err != nil {
		return Body{}, fmt.Errorf("error rendering html, %w", err)
	}
	return Body{Text: text.String(), HTML: html.String()}, nil
}
