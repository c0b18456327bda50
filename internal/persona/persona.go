// Package persona defines the fixed executive personas the model can
// role-play and resolves their system prompts from embedded templates.
package persona

import "fmt"

// Persona is one of the fixed executive roles.
type Persona string

const (
	CEO Persona = "CEO"
	CTO Persona = "CTO"
	CIO Persona = "CIO"
	CFO Persona = "CFO"
)

// Default is the persona selected for a brand-new conversation.
const Default = CEO

// All returns every persona in display order.
func All() []Persona {
	return []Persona{CEO, CTO, CIO, CFO}
}

// Parse converts a user-supplied string into a Persona.
func Parse(s string) (Persona, error) {
	switch Persona(s) {
	case CEO, CTO, CIO, CFO:
		return Persona(s), nil
	}
	return "", fmt.Errorf("unknown persona %q: must be CEO, CTO, CIO, or CFO", s)
}

// Title is the spelled-out job title, used in UI labels.
func (p Persona) Title() string {
	switch p {
	case CEO:
		return "Chief Executive Officer"
	case CTO:
		return "Chief Technology Officer"
	case CIO:
		return "Chief Information Officer"
	case CFO:
		return "Chief Financial Officer"
	}
	return string(p)
}
