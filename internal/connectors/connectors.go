package connectors

import "arkik/internal"

// MailConnector fetches raw messages from the dispatch mailbox. Plants
// mail their Arkik reports to a shared address; IMAP and Gmail backends
// implement this against that account.
type MailConnector interface {
	FetchInbox(label string, max int) ([]internal.FetchedMailMessage, error)
}
