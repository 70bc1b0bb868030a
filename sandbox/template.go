package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// Template names a preconfigured sandbox image
type Template string

// Templates known to the broker
const (
	TemplateCodeInterpreter Template = "code-interpreter-multilang"
	TemplateNextJS          Template = "nextjs-developer"
	TemplateStreamlit       Template = "streamlit-developer"
)

// Kind selects which remote resource client resolves a sandbox
type Kind string

const (
	// KindCodeInterpreter sandboxes expose notebook cell execution.
	KindCodeInterpreter Kind = "code_interpreter"
	// KindApp sandboxes expose a filesystem and a long-running served process.
	KindApp Kind = "app"
)

// Metadata keys stored on every sandbox created by the broker
const (
	MetadataUserID   = "userID"
	MetadataTemplate = "template"
)

// ErrInvalidRequest is returned before any remote call when the input is unusable
var ErrInvalidRequest = errors.New("invalid sandbox request")

var knownTemplates = []Template{
	TemplateCodeInterpreter,
	TemplateNextJS,
	TemplateStreamlit,
}

// ParseTemplate converts a template name into a known Template
func ParseTemplate(name string) (Template, error) {
	for _, t := range knownTemplates {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported template %q, must be one of: %s", ErrInvalidRequest, name, strings.Join(TemplateNames(), ", "))
}

// TemplateNames lists the names of all known templates
func TemplateNames() []string {
	names := make([]string, 0, len(knownTemplates))
	for _, t := range knownTemplates {
		names = append(names, string(t))
	}
	return names
}

// image returns the template a new sandbox of the given kind boots from.
// Code interpreter sandboxes always boot the interpreter image; the requested
// template only tags them.
func image(kind Kind, template Template) string {
	if kind == KindCodeInterpreter {
		return string(TemplateCodeInterpreter)
	}
	return string(template)
}
