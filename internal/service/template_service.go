package service

import (
	"strings"
)

// NamePlaceholder is the only placeholder templates support.
const NamePlaceholder = "{{name}}"

// RenderTemplate substitutes every {{name}} in template with name. The
// replacement is literal: no escaping and no other placeholders.
func RenderTemplate(template, name string) string {
	return strings.ReplaceAll(template, NamePlaceholder, name)
}
