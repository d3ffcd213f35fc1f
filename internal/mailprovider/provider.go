// Package mailprovider talks to the user's mailbox: OAuth sign-in, drafts,
// sending, inbox reads and address-book search.
package mailprovider

import (
	"context"

	"github.com/ashureev/mailpilot/internal/domain"
)

// Scopes requested at sign-in.
var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/gmail.compose",
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.modify",
	"https://www.googleapis.com/auth/contacts.readonly",
	"https://www.googleapis.com/auth/contacts.other.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// UserInfo identifies the signed-in account.
type UserInfo struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// ListOptions selects an inbox page.
type ListOptions struct {
	Label      string
	Query      string
	PageToken  string
	MaxResults int64
}

// AttachmentData is a downloaded attachment body.
type AttachmentData struct {
	Data []byte
}

// Provider is the mailbox surface used by the HTTP layer and the scheduler.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*domain.Credentials, error)
	UserInfo(ctx context.Context, creds *domain.Credentials) (*UserInfo, error)

	CreateDraft(ctx context.Context, creds *domain.Credentials, msg *domain.OutgoingMessage) (string, error)
	SendDraft(ctx context.Context, creds *domain.Credentials, draftID string) (string, error)
	Send(ctx context.Context, creds *domain.Credentials, msg *domain.OutgoingMessage) (string, error)

	ListMessages(ctx context.Context, creds *domain.Credentials, opts ListOptions) (*domain.MessagePage, error)
	GetMessage(ctx context.Context, creds *domain.Credentials, id string) (*domain.MessageDetail, error)
	MarkRead(ctx context.Context, creds *domain.Credentials, id string) error
	GetAttachment(ctx context.Context, creds *domain.Credentials, messageID, attachmentID string) (*AttachmentData, error)

	SearchContacts(ctx context.Context, creds *domain.Credentials, query string) ([]domain.Contact, error)
}
