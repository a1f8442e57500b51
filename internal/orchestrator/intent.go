package orchestrator

import "strings"

// Intent is the routing decision for one inbound message.
type Intent string

const (
	IntentStatus  Intent = "status_check"
	IntentComplex Intent = "complex_task"
	IntentSocial  Intent = "social_media"
	IntentEmail   Intent = "email"
	IntentSales   Intent = "sales"
	IntentSupport Intent = "support"
	IntentCRM     Intent = "crm_action"
	IntentGeneral Intent = "general"
)

// intentRule pairs an intent with its predicate. Classification walks the
// list in order and returns the first match, so the list order is a
// correctness contract: a message matching several families resolves to
// the earliest. Multi-step requests (connectives, very long messages) are
// checked right after status so they become plans instead of being
// swallowed by whichever keyword family happens to appear first.
type intentRule struct {
	Intent Intent
	Match  func(lower string) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Rules returns the ordered intent rule list.
func Rules() []intentRule {
	return []intentRule{
		{IntentStatus, func(s string) bool {
			return containsAny(s, "status", "report", "how are")
		}},
		{IntentComplex, func(s string) bool {
			return containsAny(s, " and ", "then") || len(s) > 200
		}},
		{IntentSocial, func(s string) bool {
			return containsAny(s, "post", "social", "instagram", "facebook", "linkedin", "twitter")
		}},
		{IntentEmail, func(s string) bool {
			return containsAny(s, "email", "newsletter", "sequence", "campaign")
		}},
		{IntentSales, func(s string) bool {
			return containsAny(s, "lead", "follow up", "proposal", "close", "sale", "prospect")
		}},
		{IntentSupport, func(s string) bool {
			return containsAny(s, "support", "help", "issue", "problem", "customer")
		}},
		{IntentCRM, func(s string) bool {
			return containsAny(s, "sync", "crm", "contacts", "ghl", "vbout")
		}},
	}
}

// Classify returns the first matching intent, or general.
func Classify(message string) Intent {
	lower := strings.ToLower(message)
	for _, r := range Rules() {
		if r.Match(lower) {
			return r.Intent
		}
	}
	return IntentGeneral
}

// intentAgent maps single-step intents to the agent type that handles them.
var intentAgent = map[Intent]string{
	IntentSocial:  "social-media",
	IntentEmail:   "email-marketing",
	IntentSales:   "sales",
	IntentSupport: "customer-support",
	IntentCRM:     "operations",
}
