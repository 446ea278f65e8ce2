// Package skill maps natural-language questions about a client account to
// one of a fixed set of schema-scoped skills. Each skill carries the schema
// context used for SQL generation and a deterministic fallback formatter for
// query results.
package skill

import "strings"

// Skill identifies which portion of the schema and which prompt context
// apply to a question.
type Skill string

const (
	General             Skill = "general"
	Documents           Skill = "documents"
	PhoneCalls          Skill = "phone_calls"
	PhoneMessages       Skill = "phone_messages"
	EmailCommunications Skill = "email_communications"
	CompaniesData       Skill = "companies_data"
)

// All returns the closed set of skills.
func All() []Skill {
	return []Skill{General, Documents, PhoneCalls, PhoneMessages, EmailCommunications, CompaniesData}
}

// Valid reports whether s is a member of the closed skill set.
func (s Skill) Valid() bool {
	switch s {
	case General, Documents, PhoneCalls, PhoneMessages, EmailCommunications, CompaniesData:
		return true
	}
	return false
}

type keywordGroup struct {
	skill    Skill
	keywords []string
}

// priorityGroups are checked in order; the first group with a matching
// keyword wins. Matching order is the core correctness property, so the
// tables live here as immutable configuration rather than mutable state.
var priorityGroups = []keywordGroup{
	{Documents, []string{
		"document", "documents", "file", "files",
		"pdf", "png", "jpg", "jpeg", "image", "images",
		"attachment", "attachments", "upload", "uploaded",
		"download", "policy document", "certificate",
		"contract", "contracts", "paperwork",
	}},
	{PhoneCalls, []string{
		"call", "calls", "phone call", "called", "calling",
		"voicemail", "recording", "discussed", "conversation",
		"talk", "talked", "spoke", "spoken", "ring", "rang",
		"answered", "missed call",
	}},
	{PhoneMessages, []string{
		"sms", "text", "text message", "texted", "texting",
		"message sent", "message received",
	}},
	// Overview/status phrasing is folded into the email skill: an
	// all-communications overview is treated as an email-context query
	// rather than a dedicated multi-table skill.
	{EmailCommunications, []string{
		"quote", "quotes", "quoted", "pricing", "premium", "best quote",
		"cheapest quote", "lowest quote", "quote received", "quote details",
		"quote breakdown", "total amount", "amount due",
		"email", "emails", "sent", "received", "inbox",
		"subject", "sender", "recipient", "thread",
		"followup", "follow up", "unanswered", "pending",
		"awaiting response", "no reply",
		"what's going on", "what is going on", "whats going on",
		"account status", "account overview", "overall status",
		"what happened", "activity", "timeline", "history",
		"communications", "recent activity", "latest activity", "update me",
	}},
}

// secondaryGroups are only consulted when no priority group matched.
var secondaryGroups = []keywordGroup{
	{CompaniesData, []string{
		"company name", "business name", "contact", "contact info",
		"contact details", "address", "phone number", "email address",
		"industry", "revenue", "employees", "website", "location",
		"business details", "company info", "company profile",
		"how many employees", "what industry", "annual revenue",
		"business information",
	}},
}

// Detect classifies a question by case-insensitive substring match against
// the ordered keyword groups. It is deterministic and always returns a
// valid skill; unmatched questions fall through to General.
func Detect(question string) Skill {
	q := strings.ToLower(question)

	for _, g := range priorityGroups {
		for _, kw := range g.keywords {
			if strings.Contains(q, kw) {
				return g.skill
			}
		}
	}

	for _, g := range secondaryGroups {
		for _, kw := range g.keywords {
			if strings.Contains(q, kw) {
				return g.skill
			}
		}
	}

	return General
}
