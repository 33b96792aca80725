package port

import "context"

// Mailer delivers transactional email. A non-nil error means the message was
// not handed to the relay.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
