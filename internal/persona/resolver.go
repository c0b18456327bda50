package persona

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

//go:embed templates/*.tmpl
var templates embed.FS

// ErrTemplateNotFound means no prompt template exists for the persona.
var ErrTemplateNotFound = errors.New("persona template not found")

// ResolutionError means the company data is missing a placeholder the
// persona's template requires. User-visible and not retryable.
type ResolutionError struct {
	Persona     Persona
	Placeholder string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s template: no value for placeholder {{%s}}", e.Persona, e.Placeholder)
}

var placeholderRe = regexp.MustCompile(`\{\{([a-z_]+)\}\}`)

// Resolve loads the persona's template and substitutes every placeholder
// from companyData. Substitution is schema-checked: a placeholder with no
// matching key fails up front with a *ResolutionError instead of leaking
// an unresolved marker into the prompt.
func Resolve(p Persona, companyData map[string]string) (string, error) {
	raw, err := templates.ReadFile(templatePath(p))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, p)
	}
	text := string(raw)

	var missing *ResolutionError
	resolved := placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		val, ok := companyData[key]
		if !ok {
			if missing == nil {
				missing = &ResolutionError{Persona: p, Placeholder: key}
			}
			return m
		}
		return val
	})
	if missing != nil {
		return "", missing
	}
	return strings.TrimSpace(resolved), nil
}

// Placeholders returns the distinct placeholder keys the persona's
// template requires, in first-occurrence order.
func Placeholders(p Persona) ([]string, error) {
	raw, err := templates.ReadFile(templatePath(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, p)
	}
	seen := map[string]bool{}
	var keys []string
	for _, m := range placeholderRe.FindAllStringSubmatch(string(raw), -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys, nil
}

func templatePath(p Persona) string {
	return "templates/" + strings.ToLower(string(p)) + ".tmpl"
}
