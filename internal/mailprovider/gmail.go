package mailprovider

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/observability"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

const (
	me                  = "me"
	contactsPageSize    = 1000
	contactsReadMask    = "names,emailAddresses"
	messageFetchWorkers = 8
)

var errNoCredentials = errors.New("no provider credentials")

// GmailConfig holds the OAuth client registration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides the Google API root for every service.
	Endpoint string
}

// Gmail implements Provider over the Gmail, People and userinfo APIs.
type Gmail struct {
	oauth    *oauth2.Config
	endpoint string
	cb       *gobreaker.CircuitBreaker
	logger   *slog.Logger
	now      func() time.Time
}

var _ Provider = (*Gmail)(nil)

// NewGmail creates a Gmail provider.
func NewGmail(cfg GmailConfig, logger *slog.Logger) *Gmail {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}

	return &Gmail{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		endpoint: cfg.Endpoint,
		cb:       gobreaker.NewCircuitBreaker(settings),
		logger:   logger,
		now:      time.Now,
	}
}

// --- authentication ---

// AuthCodeURL returns the consent URL. Offline access with forced approval
// guarantees a refresh token.
func (g *Gmail) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for credentials.
func (g *Gmail) Exchange(ctx context.Context, code string) (*domain.Credentials, error) {
	const op = "gmail.exchange"
	if strings.TrimSpace(code) == "" {
		return nil, shared.Validation(op, "missing authorization code")
	}

	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, shared.AuthRequired(op, err)
	}
	return &domain.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     g.oauth.Endpoint.TokenURL,
		ClientID:     g.oauth.ClientID,
		ClientSecret: g.oauth.ClientSecret,
		Scopes:       g.oauth.Scopes,
		Expiry:       tok.Expiry,
	}, nil
}

// UserInfo returns the signed-in account's profile.
func (g *Gmail) UserInfo(ctx context.Context, creds *domain.Credentials) (*UserInfo, error) {
	const op = "gmail.userinfo"
	opts, err := g.clientOptions(ctx, op, creds)
	if err != nil {
		return nil, err
	}
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, shared.Provider(op, err)
	}

	var info *oauth2api.Userinfo
	err = g.call(op, func() error {
		var apiErr error
		info, apiErr = svc.Userinfo.Get().Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return &UserInfo{Email: info.Email, Name: info.Name, Picture: info.Picture}, nil
}

// --- sending ---

// CreateDraft stores msg as a draft and returns the draft id.
func (g *Gmail) CreateDraft(ctx context.Context, creds *domain.Credentials, msg *domain.OutgoingMessage) (string, error) {
	const op = "gmail.create_draft"
	svc, err := g.gmailService(ctx, op, creds)
	if err != nil {
		return "", err
	}
	raw, threadID, err := g.encode(ctx, svc, op, msg)
	if err != nil {
		return "", err
	}

	var draft *gmail.Draft
	err = g.call(op, func() error {
		var apiErr error
		draft, apiErr = svc.Users.Drafts.Create(me, &gmail.Draft{
			Message: &gmail.Message{Raw: raw, ThreadId: threadID},
		}).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", err
	}
	return draft.Id, nil
}

// SendDraft sends an existing draft and returns the sent message id.
func (g *Gmail) SendDraft(ctx context.Context, creds *domain.Credentials, draftID string) (string, error) {
	const op = "gmail.send_draft"
	svc, err := g.gmailService(ctx, op, creds)
	if err != nil {
		return "", err
	}

	var sent *gmail.Message
	err = g.call(op, func() error {
		var apiErr error
		sent, apiErr = svc.Users.Drafts.Send(me, &gmail.Draft{Id: draftID}).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

// Send sends msg immediately and returns the message id.
func (g *Gmail) Send(ctx context.Context, creds *domain.Credentials, msg *domain.OutgoingMessage) (string, error) {
	const op = "gmail.send"
	svc, err := g.gmailService(ctx, op, creds)
	if err != nil {
		return "", err
	}
	raw, threadID, err := g.encode(ctx, svc, op, msg)
	if err != nil {
		return "", err
	}

	var sent *gmail.Message
	err = g.call(op, func() error {
		var apiErr error
		sent, apiErr = svc.Users.Messages.Send(me, &gmail.Message{Raw: raw, ThreadId: threadID}).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

// encode renders msg. A reply looks up the original's Message-ID header so
// the answer threads in every client.
func (g *Gmail) encode(ctx context.Context, svc *gmail.Service, op string, msg *domain.OutgoingMessage) (string, string, error) {
	if msg == nil || strings.TrimSpace(msg.To) == "" {
		return "", "", shared.Validation(op, "recipient is required")
	}

	threadID := msg.ThreadID
	var inReplyTo string
	if msg.InReplyTo != "" {
		var original *gmail.Message
		err := g.call(op+".original", func() error {
			var apiErr error
			original, apiErr = svc.Users.Messages.Get(me, msg.InReplyTo).
				Format("metadata").
				MetadataHeaders("Message-ID").
				Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return "", "", err
		}
		if original.Payload != nil {
			inReplyTo = headerValue(original.Payload.Headers, "Message-ID")
		}
		if threadID == "" {
			threadID = original.ThreadId
		}
	}

	raw, err := buildMessage(msg, inReplyTo, g.now())
	if err != nil {
		return "", "", shared.Validation(op, err.Error())
	}
	return base64.URLEncoding.EncodeToString(raw), threadID, nil
}

// --- reading ---

// ListMessages returns one page of the mailbox with bodies previewed.
func (g *Gmail) ListMessages(ctx context.Context, creds *domain.Credentials, opts ListOptions) (*domain.MessagePage, error) {
	const op = "gmail.list_messages"
	svc, err := g.gmailService(ctx, op, creds)
	if err != nil {
		return nil, err
	}

	label := strings.ToUpper(strings.TrimSpace(opts.Label))
	if label == "" {
		label = defaultLabel
	}
	pageLen := opts.MaxResults
	if pageLen <= 0 {
		pageLen = defaultPageLen
	}

	call := svc.Users.Messages.List(me).LabelIds(label).MaxResults(pageLen)
	if opts.Query != "" {
		call = call.Q(opts.Query)
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	var resp *gmail.ListMessagesResponse
	err = g.call(op, func() error {
		var apiErr error
		resp, apiErr = call.Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}

	return &domain.MessagePage{
		Messages:      g.fetchSummaries(ctx, svc, resp.Messages),
		NextPageToken: resp.NextPageToken,
	}, nil
}

// fetchSummaries loads full messages in parallel, preserving list order.
// Messages that fail to load are skipped.
func (g *Gmail) fetchSummaries(ctx context.Context, svc *gmail.Service, refs []*gmail.Message) []domain.MessageSummary {
	results := make([]*domain.MessageSummary, len(refs))
	sem := make(chan struct{}, messageFetchWorkers)
	var wg sync.WaitGroup

	for i, ref := range refs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			var m *gmail.Message
			err := g.call("gmail.get_message", func() error {
				var apiErr error
				m, apiErr = svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
				return apiErr
			})
			if err != nil {
				g.logger.Warn("Failed to load message", "message_id", id, "error", err)
				return
			}
			s := toSummary(m)
			results[i] = &s
		}(i, ref.Id)
	}
	wg.Wait()

	out := make([]domain.MessageSummary, 0, len(refs))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// GetMessage returns a fully decoded message.
func (g *Gmail) GetMessage(ctx context.Context, creds *domain.Credentials, id string) (*domain.MessageDetail, error) {
	const op = "gmail.get_message"
	svc, err := g.gmailService(ctx, op, creds)
	if err != nil {
		return nil, err
	}

	var m *gmail.Message
	err = g.call(op, func() error {
		var apiErr error
		m, apiErr = svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	return toDetail(m), nil
}

// MarkRead removes the UNREAD label.
func (g *Gmail) MarkRead(ctx context.Context, creds *domain.Credentials, id string) error {
	const op = "gmail.mark_read"
	svc, err := g.gmailService(ctx, op, creds)
	if err != nil {
		return err
	}
	return g.call(op, func() error {
		_, apiErr := svc.Users.Messages.Modify(me, id, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{unreadLabel},
		}).Context(ctx).Do()
		return apiErr
	})
}

// GetAttachment downloads one attachment body.
func (g *Gmail) GetAttachment(ctx context.Context, creds *domain.Credentials, messageID, attachmentID string) (*AttachmentData, error) {
	const op = "gmail.get_attachment"
	svc, err := g.gmailService(ctx, op, creds)
	if err != nil {
		return nil, err
	}

	var body *gmail.MessagePartBody
	err = g.call(op, func() error {
		var apiErr error
		body, apiErr = svc.Users.Messages.Attachments.Get(me, messageID, attachmentID).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, err
	}
	data, err := decodeData(body.Data)
	if err != nil {
		return nil, shared.Provider(op, err)
	}
	return &AttachmentData{Data: data}, nil
}

// --- contacts ---

// SearchContacts scans the account's other contacts for entries whose
// display name or address contains query, returning the first matching
// address of each.
func (g *Gmail) SearchContacts(ctx context.Context, creds *domain.Credentials, query string) ([]domain.Contact, error) {
	const op = "gmail.search_contacts"
	opts, err := g.clientOptions(ctx, op, creds)
	if err != nil {
		return nil, err
	}
	svc, err := people.NewService(ctx, opts...)
	if err != nil {
		return nil, shared.Provider(op, err)
	}

	q := strings.ToLower(query)
	var found []domain.Contact
	pageToken := ""
	for {
		call := svc.OtherContacts.List().PageSize(contactsPageSize).ReadMask(contactsReadMask)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *people.ListOtherContactsResponse
		err := g.call(op, func() error {
			var apiErr error
			resp, apiErr = call.Context(ctx).Do()
			return apiErr
		})
		if err != nil {
			return nil, err
		}

		for _, p := range resp.OtherContacts {
			if c, ok := matchPerson(p, q); ok {
				found = append(found, c)
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return found, nil
}

func matchPerson(p *people.Person, q string) (domain.Contact, bool) {
	if len(p.Names) == 0 || len(p.EmailAddresses) == 0 {
		return domain.Contact{}, false
	}
	name := p.Names[0].DisplayName
	nameMatches := strings.Contains(strings.ToLower(name), q)
	for _, e := range p.EmailAddresses {
		if nameMatches || strings.Contains(strings.ToLower(e.Value), q) {
			return domain.Contact{Name: name, Email: e.Value}, true
		}
	}
	return domain.Contact{}, false
}

// --- internal helpers ---

func (g *Gmail) clientOptions(ctx context.Context, op string, creds *domain.Credentials) ([]option.ClientOption, error) {
	if creds == nil || (creds.AccessToken == "" && creds.RefreshToken == "") {
		return nil, shared.AuthRequired(op, errNoCredentials)
	}
	tok := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}
	opts := []option.ClientOption{option.WithTokenSource(g.oauth.TokenSource(ctx, tok))}
	if g.endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.endpoint))
	}
	return opts, nil
}

func (g *Gmail) gmailService(ctx context.Context, op string, creds *domain.Credentials) (*gmail.Service, error) {
	opts, err := g.clientOptions(ctx, op, creds)
	if err != nil {
		return nil, err
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, shared.Provider(op, err)
	}
	return svc, nil
}

// call runs fn behind the circuit breaker, records metrics and classifies
// the error.
func (g *Gmail) call(op string, fn func() error) error {
	start := time.Now()
	_, err := g.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if !tripsBreaker(err) {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}

	status := "success"
	if err != nil {
		status = "error"
		g.logger.Debug("Provider call failed", "op", op, "breaker", g.cb.State().String(), "error", err)
	}
	observability.RecordProviderCall(op, status, int(time.Since(start).Milliseconds()))
	return classify(op, err)
}
