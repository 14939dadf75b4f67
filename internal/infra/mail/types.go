package mail

type MailType string

const (
	Welcome MailType = "Welcome"
)

type MailData interface {
	GetMailType() MailType
	GetSubject() string
}

type WelcomeData struct {
	URL        string
	Passphrase string
}

func (w WelcomeData) GetMailType() MailType {
	return Welcome
}

func (w WelcomeData) GetSubject() string {
	return "Your Crimata hub is ready"
}
