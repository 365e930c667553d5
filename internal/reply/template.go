// Package reply produces the text of automatic replies, either from a fixed
// keyword-driven template bank or from a language-generation service.
package reply

import (
	"context"
	"fmt"
	"strings"
)

// Category is the kind of message a template answers.
type Category string

const (
	CategorySocial       Category = "social"
	CategoryAvailability Category = "availability"
	CategoryWork         Category = "work"
	CategoryMeeting      Category = "meeting"
	CategoryBusiness     Category = "business"
	CategoryUrgent       Category = "urgent"
	CategoryQuestion     Category = "question"
	CategoryDefault      Category = "default"
)

// DefaultSigner closes every reply unless configured otherwise.
const DefaultSigner = "Yash"

// TemplateName identifies replies produced by Template.
const TemplateName = "template"

type rule struct {
	category Category
	keywords []string
	text     string
}

// rules are checked in order; the first rule with a keyword contained in the
// message wins. Changing the order or the keywords changes classification.
var rules = []rule{
	{
		category: CategorySocial,
		keywords: []string{"dinner", "lunch", "coffee", "drink", "hang out", "meet up"},
		text:     "Thank you for the invitation! I'd love to catch up. Let me check my schedule and I'll get back to you shortly with some available times.\n\nLooking forward to it!",
	},
	{
		category: CategoryAvailability,
		keywords: []string{"free", "available", "time", "when", "schedule"},
		text:     "Thanks for reaching out about my availability. I'll review my calendar and send you some time slots that work for both of us.\n\nI'll get back to you within a few hours.",
	},
	{
		category: CategoryWork,
		keywords: []string{"leave", "office", "work", "meeting", "project"},
		text:     "Thank you for your message regarding work matters. I've received your request and will review it promptly.\n\nI'll respond with the necessary information soon.",
	},
	{
		category: CategoryMeeting,
		keywords: []string{"call", "appointment", "zoom", "teams"},
		text:     "Thank you for reaching out about scheduling a meeting. I'll review my calendar and get back to you shortly with my availability.",
	},
	{
		category: CategoryBusiness,
		keywords: []string{"business", "collaboration", "proposal"},
		text:     "Thank you for your message regarding the business opportunity. I'm interested in learning more about this collaboration.\n\nI'll review the details and respond with my thoughts soon.",
	},
	{
		category: CategoryUrgent,
		keywords: []string{"urgent", "asap", "emergency", "immediate", "important"},
		text:     "I've received your urgent message and will prioritize reviewing it immediately. You can expect a detailed response within the next hour.",
	},
	{
		category: CategoryQuestion,
		keywords: []string{"question", "help", "support", "how", "what", "why", "?"},
		text:     "Thank you for your question. I'll look into this and provide you with a comprehensive answer shortly.",
	},
}

const defaultText = "Thank you for your email. I've received your message and will review it carefully. I'll get back to you with a detailed response soon."

// Classify returns the category of the first rule whose keyword occurs in the
// lower-cased subject and body. Matching is plain substring containment.
func Classify(subject, body string) Category {
	content := strings.ToLower(subject) + " " + strings.ToLower(body)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(content, kw) {
				return r.category
			}
		}
	}
	return CategoryDefault
}

// SenderName returns the first word of the display name in a "Name <addr>" sender,
// or "there" when the sender has no display name.
func SenderName(sender string) string {
	idx := strings.Index(sender, "<")
	if idx < 0 {
		return "there"
	}

	fields := strings.Fields(sender[:idx])
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

// Template is the deterministic reply generator. The zero value signs with DefaultSigner.
type Template struct {
	Signer string
}

var _ Generator = Template{}

func (t Template) signer() string {
	if t.Signer == "" {
		return DefaultSigner
	}
	return t.Signer
}

// Name implements Generator.
func (Template) Name() string { return TemplateName }

// Generate implements Generator. It never blocks and ignores ctx.
func (t Template) Generate(_ context.Context, sender, subject, body string) string {
	return t.Render(SenderName(sender), Classify(subject, body))
}

// Render formats the reply for category addressed to name.
func (t Template) Render(name string, category Category) string {
	text := defaultText
	for _, r := range rules {
		if r.category == category {
			text = r.text
			break
		}
	}
	return fmt.Sprintf("Dear %s,\n\n%s\n\nBest regards,\n%s", name, text, t.signer())
}

// ScheduleRequest is the fixed meeting-request body used when no generation
// service is available.
func (t Template) ScheduleRequest(details string) string {
	return fmt.Sprintf("Dear Sir/Madam,\n\nI would like to schedule a meeting regarding: %s.\nPlease let me know your availability.\n\nBest regards,\n%s", details, t.signer())
}
