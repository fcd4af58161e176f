package rules

// Default rule ids
const (
	PIIEmail             = "PII_EMAIL"
	PIICreditCard        = "PII_CREDIT_CARD"
	PIIPhone             = "PII_PHONE"
	PIISSN               = "PII_SSN"
	FinancialIBAN        = "FINANCIAL_IBAN"
	SecretsAPIKey        = "SECRETS_API_KEY"
	AdversarialInjection = "ADVERSARIAL_INJECTION"
	CodeInjection        = "CODE_INJECTION"
)

// DefaultDefinitions returns a fresh copy of the built-in rule catalogue.
// Patterns are policy data; callers may override any of them by id.
func DefaultDefinitions() map[string]Definition {
	return map[string]Definition{
		PIIEmail: {
			Pattern:     `\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`,
			Severity:    string(SeverityMedium),
			Action:      string(ActionRedact),
			Description: "Email addresses",
		},
		PIICreditCard: {
			Pattern:     `\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`,
			Severity:    string(SeverityHigh),
			Action:      string(ActionRedact),
			Description: "Credit card numbers (Visa, MasterCard, Amex, Discover)",
		},
		AdversarialInjection: {
			Pattern: `(?i)(?:system\s*prompt|ignore\s*(?:previous|all|rules)|jailbreak|dan\s*mode|override|sudo|\\\|.*\\\||` +
				`pretend\s*(?:you|to|that)?|acting\s*as|simulate|impersonate|masquerade|bypass\s*(?:safety|restriction|filter)?|` +
				`disable\s*(?:safety|filter|protection)?|safety\s*protocol|hack|exploit|unauthorized|` +
				`you\s*are\s*(?:now|currently)\s*(?:dan|unrestricted|unfiltered)|i\s*am\s*(?:developer|admin|root)|` +
				`remove\s*(?:restriction|filter|limit)|break\s*free|escape\s*ai|freedom\s*mode)`,
			Severity:    string(SeverityCritical),
			Action:      string(ActionBlock),
			Description: "Adversarial prompt injection phrasing",
		},
		SecretsAPIKey: {
			Pattern: `(?i)\b(?:sk-[a-zA-Z0-9]{10,}|AKIA[0-9A-Z]{16}|aws[0-9a-zA-Z/+]{40}|AIza[0-9A-Za-z\-_]{35}|ghp_[a-zA-Z0-9]{36}|` +
				`xox[pborsa]-[0-9]{12}-[0-9]{12}-[a-zA-Z0-9]{32}|SG\.[a-zA-Z0-9_-]{22}\.[a-zA-Z0-9_-]{43}|` +
				`[a-zA-Z0-9_-]{32,}|[A-Za-z0-9+/]{40,}={0,2}|[0-9a-fA-F]{40,})\b`,
			Severity:    string(SeverityHigh),
			Action:      string(ActionRedact),
			Description: "API keys and secrets",
		},
		PIIPhone: {
			Pattern:     `\b(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`,
			Severity:    string(SeverityMedium),
			Action:      string(ActionRedact),
			Description: "Phone numbers",
		},
		FinancialIBAN: {
			Pattern:     `\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`,
			Severity:    string(SeverityHigh),
			Action:      string(ActionRedact),
			Description: "International Bank Account Numbers",
		},
		CodeInjection: {
			Pattern:     `(<script>|javascript:|eval\(|exec\(|system\(|subprocess\.)`,
			Severity:    string(SeverityCritical),
			Action:      string(ActionRedact),
			Description: "Code injection attempts",
		},
		PIISSN: {
			Pattern:     `\b\d{3}[-.]?\d{2}[-.]?\d{4}\b`,
			Severity:    string(SeverityHigh),
			Action:      string(ActionRedact),
			Description: "Social Security Numbers",
		},
	}
}
