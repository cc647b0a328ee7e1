package email

import (
	"context"
	"fmt"
	"time"
)

// ShareNotice describes a share link to deliver by mail.
type ShareNotice struct {
	RecipientEmail  string
	CredentialTitle string
	Institution     string
	Link            string
	Password        bool
	ExpiresAt       *time.Time
}

// SendShareNotice composes and sends the share-link email.
func SendShareNotice(ctx context.Context, s Sender, n ShareNotice) error {
	subject := fmt.Sprintf("Credential shared with you: %s", n.CredentialTitle)

	body := fmt.Sprintf(
		"A verified academic credential has been shared with you.\n\n"+
			"Credential: %s\nIssued by: %s\n\nView and verify it here:\n%s\n",
		n.CredentialTitle, n.Institution, n.Link,
	)
	if n.Password {
		body += "\nThis link is password protected. The sender will give you the password separately.\n"
	}
	if n.ExpiresAt != nil {
		body += fmt.Sprintf("\nThe link expires on %s.\n", n.ExpiresAt.UTC().Format("2 January 2006 15:04 UTC"))
	}

	return s.Send(ctx, n.RecipientEmail, subject, body)
}
