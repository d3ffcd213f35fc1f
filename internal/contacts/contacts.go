// Package contacts merges the owner's saved relations with provider contact
// search results.
package contacts

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ashureev/mailpilot/internal/domain"
	"github.com/ashureev/mailpilot/internal/shared"
	"github.com/ashureev/mailpilot/internal/store"
)

// minQueryRunes is the shortest query that reaches any source.
const minQueryRunes = 2

// ContactSearcher searches the owner's provider address book.
type ContactSearcher interface {
	SearchContacts(ctx context.Context, creds *domain.Credentials, query string) ([]domain.Contact, error)
}

// Service resolves contacts for the compose form.
type Service struct {
	relations store.RelationStore
	searcher  ContactSearcher
	logger    *slog.Logger
}

// NewService creates a contact service. A nil searcher limits results to
// saved relations.
func NewService(relations store.RelationStore, searcher ContactSearcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{relations: relations, searcher: searcher, logger: logger}
}

// Search returns saved relations followed by provider contacts matching
// query, deduplicated by address.
func (s *Service) Search(ctx context.Context, owner string, creds *domain.Credentials, query string) ([]domain.Contact, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryRunes {
		return []domain.Contact{}, nil
	}

	saved := s.searchRelations(ctx, owner, query)

	var found []domain.Contact
	if s.searcher != nil {
		var err error
		found, err = s.searcher.SearchContacts(ctx, creds, query)
		if err != nil {
			if shared.IsAuthRequired(err) {
				return nil, err
			}
			return nil, shared.E(shared.KindSearch, "contacts.search", "contact search failed", err)
		}
	}

	merged := merge(saved, found)
	s.logger.Debug("Contact search",
		"owner", owner,
		"saved", len(saved),
		"provider", len(found),
		"total", len(merged),
	)
	return merged, nil
}

func (s *Service) searchRelations(ctx context.Context, owner, query string) []domain.Contact {
	if owner == "" {
		return nil
	}
	rels, err := s.relations.ListRelations(ctx, owner)
	if err != nil {
		s.logger.Warn("Failed to search saved relations", "owner", owner, "error", err)
		return nil
	}

	q := strings.ToLower(query)
	var out []domain.Contact
	for _, r := range rels {
		if !strings.Contains(strings.ToLower(r.Relation), q) && !strings.Contains(strings.ToLower(r.Email), q) {
			continue
		}
		out = append(out, domain.Contact{
			Name:   capitalize(r.Relation) + " - " + localPart(r.Email),
			Email:  r.Email,
			Source: domain.SourceSavedRelation,
		})
	}
	return out
}

// merge concatenates saved then provider contacts, keeping the first entry
// for each address.
func merge(saved, found []domain.Contact) []domain.Contact {
	seen := make(map[string]struct{}, len(saved)+len(found))
	out := make([]domain.Contact, 0, len(saved)+len(found))
	add := func(c domain.Contact, source string) {
		key := strings.ToLower(c.Email)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		c.Source = source
		out = append(out, c)
	}
	for _, c := range saved {
		add(c, domain.SourceSavedRelation)
	}
	for _, c := range found {
		add(c, domain.SourceGoogleContacts)
	}
	return out
}

// RecordRelation remembers that owner wrote to recipient under relation.
// Failures are logged only.
func (s *Service) RecordRelation(ctx context.Context, owner, recipient, relation string) {
	relation = strings.ToLower(strings.TrimSpace(relation))
	email := ExtractAddress(recipient)
	if owner == "" || relation == "" || email == "" {
		return
	}
	err := s.relations.SaveRelation(ctx, domain.Relation{Owner: owner, Relation: relation, Email: email})
	if err != nil {
		s.logger.Warn("Failed to save relation", "owner", owner, "relation", relation, "error", err)
		return
	}
	s.logger.Debug("Relation saved", "owner", owner, "relation", relation)
}

// ExtractAddress returns the bare address of "Name <addr>" or addr.
func ExtractAddress(recipient string) string {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ""
	}
	if a, err := mail.ParseAddress(recipient); err == nil {
		return a.Address
	}
	if i := strings.LastIndex(recipient, "<"); i >= 0 {
		if j := strings.LastIndex(recipient, ">"); j > i {
			return strings.TrimSpace(recipient[i+1 : j])
		}
	}
	return recipient
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func localPart(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}
