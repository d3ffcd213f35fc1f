package domain

// Attachment is a file attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// OutgoingMessage is a message to be drafted or sent.
type OutgoingMessage struct {
	To          string
	CC          []string
	BCC         []string
	Subject     string
	HTMLBody    string
	ThreadID    string
	InReplyTo   string
	Attachments []Attachment
}

// MessageSummary is an inbox listing row.
type MessageSummary struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Subject  string `json:"subject"`
	From     string `json:"from"`
	To       string `json:"to"`
	Date     string `json:"date"`
	Snippet  string `json:"snippet"`
	Body     string `json:"body"`
	IsUnread bool   `json:"isUnread"`
}

// AttachmentRef points at a downloadable attachment of a received message.
type AttachmentRef struct {
	AttachmentID string `json:"attachmentId"`
	Filename     string `json:"filename"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
}

// MessageDetail is a fully decoded received message.
type MessageDetail struct {
	ID          string          `json:"id"`
	ThreadID    string          `json:"threadId"`
	Subject     string          `json:"subject"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Date        string          `json:"date"`
	Body        string          `json:"body"`
	IsHTML      bool            `json:"isHtml"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// MessagePage is one page of an inbox listing.
type MessagePage struct {
	Messages      []MessageSummary `json:"messages"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
}

// Draft is generated email content.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ChatMessage is one role-tagged transcript turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Transcript roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
