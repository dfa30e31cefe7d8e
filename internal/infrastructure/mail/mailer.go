package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"agromart/pkg/logger"
)

// Sender delivers notification emails over SMTP. With no host configured
// it prints the message instead, which keeps local development working
// without a mail account.
type Sender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func NewSender(host, port, username, password, from string) *Sender {
	return &Sender{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
	}
}

const unreadAlertTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #ddd; border-radius: 5px; }
        .header { background-color: #2e7d32; color: white; padding: 10px; text-align: center; border-radius: 5px 5px 0 0; }
        .content { padding: 20px; }
        .count { font-size: 1.4em; font-weight: bold; color: #2e7d32; }
        .footer { margin-top: 20px; font-size: 0.8em; color: #777; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>AgroMart</h1>
        </div>
        <div class="content">
            <p>Hi {{.Name}},</p>
            <p>You have <span class="count">{{.Unread}}</span> unread messages about
            <strong>{{.ListingTitle}}</strong>.</p>
            <p>Open AgroMart to read and reply.</p>
        </div>
        <div class="footer">
            <p>You receive this because unread messages piled up in one of your conversations.</p>
        </div>
    </div>
</body>
</html>
`

type unreadAlertData struct {
	Name         string
	ListingTitle string
	Unread       int
}

// SendUnreadAlert emails a recipient about unread messages piling up in a
// conversation.
func (s *Sender) SendUnreadAlert(to, name, listingTitle string, unread int) error {
	t, err := template.New("unread_alert").Parse(unreadAlertTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var body bytes.Buffer
	if err := t.Execute(&body, unreadAlertData{Name: name, ListingTitle: listingTitle, Unread: unread}); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	headers := map[string]string{
		"From":         s.From,
		"To":           to,
		"Subject":      fmt.Sprintf("You have %d unread messages on AgroMart", unread),
		"MIME-Version": "1.0",
		"Content-Type": `text/html; charset="UTF-8"`,
	}

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	message += "\r\n" + body.String()

	if s.Host == "" {
		logger.Info("MOCK EMAIL to=%s subject=%q", to, headers["Subject"])
		return nil
	}

	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)

	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(message))
}
