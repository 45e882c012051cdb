package ai

import (
	"fmt"
	"regexp"
	"strings"
)

// Prompt templates keyed by scenario name. Placeholders use {name} syntax
// and are substituted from the per-call variable set; a template that
// references an unknown placeholder is a configuration error caught by
// ValidateTemplates at startup, not at call time.

const (
	ScenarioMessageAnalysis = "message_analysis"
)

const systemPrompt = `You are a finance assistant for an Indonesian group expense tracker.
Interpret the user's message and respond with a single JSON object:
{
  "intent": "create_transaction" | "balance_inquiry" | "history_inquiry" | "cancel_last" | "help" | "chat",
  "entities": {
    "amount": <number>,
    "currency": <3-letter code>,
    "type": "income" | "expense" | "transfer" | "convert",
    "description": <string>,
    "category": <string>
  },
  "confidence": <number between 0 and 1>,
  "reply": <short reply for the user, in the user's language>
}
Only include entities for create_transaction. Colloquial amounts like "75rb" mean 75000 and "5 juta" means 5000000.`

var templates = map[string]string{
	ScenarioMessageAnalysis: `Message: "{message}"
Group currency: {currency}
Daily limit: {daily_limit}, monthly limit: {monthly_limit}
User role: {role}
Recent conversation: {memory_summary}
Context digest: {context_hash}`,
}

// templateVars is the closed set of substitution variables the pipeline
// supplies for every call.
var templateVars = map[string]bool{
	"message":        true,
	"currency":       true,
	"daily_limit":    true,
	"monthly_limit":  true,
	"role":           true,
	"memory_summary": true,
	"context_hash":   true,
}

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// ValidateTemplates checks every template only references known variables.
// Called once at startup; a failure is fatal.
func ValidateTemplates() error {
	for name, tmpl := range templates {
		for _, match := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
			if !templateVars[match[1]] {
				return fmt.Errorf("prompt template %q references unknown placeholder {%s}", name, match[1])
			}
		}
	}
	return nil
}

// renderPrompt substitutes vars into the named template. Unknown template
// names are a programming error.
func renderPrompt(name string, vars map[string]string) (string, error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template not found: %s", name)
	}
	for key, value := range vars {
		tmpl = strings.ReplaceAll(tmpl, "{"+key+"}", value)
	}
	return tmpl, nil
}
