package domain

import "strings"

// RelationVocabulary lists the relationship labels the mediator may emit.
var RelationVocabulary = []string{
	"manager", "professor", "supervisor", "colleague", "teammate", "client",
	"customer", "recruiter", "interviewer", "mentor", "advisor", "friend",
	"family", "peer", "vendor", "partner",
}

var relationSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(RelationVocabulary))
	for _, r := range RelationVocabulary {
		m[r] = struct{}{}
	}
	return m
}()

// IsKnownRelation reports whether label is part of the relation vocabulary.
func IsKnownRelation(label string) bool {
	_, ok := relationSet[strings.ToLower(strings.TrimSpace(label))]
	return ok
}

// SlotState is the structured record the mediator maintains for a session.
// Nil pointers and nil slices mean "absent".
type SlotState struct {
	RecipientName     *string  `json:"recipient_name"`
	RecipientRelation *string  `json:"recipient_relation"`
	RecipientOptions  *int     `json:"recipient_options"`
	CC                []string `json:"cc"`
	BCC               []string `json:"bcc"`
	Description       *string  `json:"description"`
	MailRevision      *string  `json:"mail_revision"`
}

// Normalize cleans a raw extraction in place: blank strings become absent,
// relations are lowercased and checked against the vocabulary, option counts
// of one or less are dropped and empty recipient lists become absent.
func (s *SlotState) Normalize() {
	s.RecipientName = trimmedOrNil(s.RecipientName)
	s.Description = trimmedOrNil(s.Description)
	s.MailRevision = trimmedOrNil(s.MailRevision)

	if rel := trimmedOrNil(s.RecipientRelation); rel != nil {
		lower := strings.ToLower(*rel)
		if IsKnownRelation(lower) {
			s.RecipientRelation = &lower
		} else {
			s.RecipientRelation = nil
		}
	} else {
		s.RecipientRelation = nil
	}

	if s.RecipientOptions != nil && *s.RecipientOptions <= 1 {
		s.RecipientOptions = nil
	}

	s.CC = compactList(s.CC)
	s.BCC = compactList(s.BCC)
}

// Merge folds next into the receiver and returns the result. A field that is
// absent in next keeps its previous value. The ambiguity and revision
// invariants are applied to the merged state.
//
// next is the raw extraction. An explicit option count of one or less, or a
// recipient name extracted without an option count, resolves an outstanding
// ambiguity.
func (s SlotState) Merge(next SlotState) SlotState {
	resolved := resolvesAmbiguity(next)
	next.Normalize()
	merged := s.Clone()

	if next.RecipientName != nil {
		merged.RecipientName = next.RecipientName
	}
	if next.RecipientRelation != nil {
		merged.RecipientRelation = next.RecipientRelation
	}
	if next.RecipientOptions != nil {
		merged.RecipientOptions = next.RecipientOptions
	} else if resolved {
		merged.RecipientOptions = nil
	}
	if next.CC != nil {
		merged.CC = append([]string(nil), next.CC...)
	}
	if next.BCC != nil {
		merged.BCC = append([]string(nil), next.BCC...)
	}
	if next.MailRevision != nil {
		merged.MailRevision = next.MailRevision
	}
	// A description that only echoes the revision instruction is not a new
	// brief; the prior description stays.
	if next.Description != nil && !sameText(next.Description, next.MailRevision) {
		merged.Description = next.Description
	}
	if sameText(merged.Description, merged.MailRevision) {
		merged.Description = s.Description
	}

	if merged.RecipientOptions != nil && *merged.RecipientOptions > 1 {
		merged.Description = nil
	}
	return merged
}

// Ready reports whether the state carries enough to draft an email.
func (s SlotState) Ready() bool {
	return s.RecipientName != nil && s.Description != nil && s.RecipientOptions == nil
}

// Clone returns a deep copy.
func (s SlotState) Clone() SlotState {
	out := SlotState{
		RecipientName:     copyString(s.RecipientName),
		RecipientRelation: copyString(s.RecipientRelation),
		Description:       copyString(s.Description),
		MailRevision:      copyString(s.MailRevision),
	}
	if s.RecipientOptions != nil {
		n := *s.RecipientOptions
		out.RecipientOptions = &n
	}
	if s.CC != nil {
		out.CC = append([]string(nil), s.CC...)
	}
	if s.BCC != nil {
		out.BCC = append([]string(nil), s.BCC...)
	}
	return out
}

// ComposeContext is the subset of slot state the compose view needs.
type ComposeContext struct {
	RecipientName        *string `json:"recipient_name"`
	RecipientOptionIndex *int    `json:"recipient_option_index"`
	Description          *string `json:"description"`
}

// Context projects the state onto a ComposeContext.
func (s SlotState) Context() ComposeContext {
	c := s.Clone()
	return ComposeContext{
		RecipientName:        c.RecipientName,
		RecipientOptionIndex: c.RecipientOptions,
		Description:          c.Description,
	}
}

func resolvesAmbiguity(raw SlotState) bool {
	if raw.RecipientOptions != nil {
		return *raw.RecipientOptions <= 1
	}
	return trimmedOrNil(raw.RecipientName) != nil
}

func trimmedOrNil(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func compactList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*a), strings.TrimSpace(*b))
}
