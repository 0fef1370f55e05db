// Package render performs placeholder substitution for message templates.
// It is pure: unresolved placeholders stay verbatim in the output and no
// escaping is performed here (sanitization is a presentation concern).
package render

import (
	"strings"

	"github.com/bulkwave/messaging-backend/internal/model"
)

// Rendered is a template with all three text components substituted.
type Rendered struct {
	Header  string
	Body    string
	Footer  string
	Buttons []string
}

// Text renders one text component against the variable map. Every {key}
// with a value in vars is replaced; keys missing from vars are left as-is.
func Text(text string, vars map[string]string) string {
	result := text
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

// Template renders a template's header, body and footer. Button labels
// carry no placeholders and pass through untouched.
func Template(t *model.Template, vars map[string]string) Rendered {
	return Rendered{
		Header:  Text(t.Header, vars),
		Body:    Text(t.Body, vars),
		Footer:  Text(t.Footer, vars),
		Buttons: t.Buttons,
	}
}

// Flatten joins the rendered components into the single text stored on a
// delivery report.
func (r Rendered) Flatten() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Header, r.Body, r.Footer} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// Bind resolves a campaign's placeholder->attribute bindings against one
// contact. Attributes the contact does not carry are skipped, which leaves
// their placeholders verbatim after rendering. The reserved attribute key
// "name" resolves to the contact's display name.
func Bind(bindings map[string]string, c *model.Contact) map[string]string {
	vars := make(map[string]string, len(bindings))
	for placeholder, attrKey := range bindings {
		if attrKey == "name" {
			vars[placeholder] = c.DisplayName
			continue
		}
		if v, ok := c.Attributes[attrKey]; ok {
			vars[placeholder] = v
		}
	}
	return vars
}
