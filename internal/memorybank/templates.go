// ABOUTME: Embedded templates for new memory bank files and editor rules
// ABOUTME: Renders project info into the seven bank documents

package memorybank

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates
var templateFS embed.FS

var bankTemplates = template.Must(template.New("bank").ParseFS(templateFS, "templates/*.tmpl"))

// render executes one embedded template against info.
func render(name string, info ProjectInfo) (string, error) {
	var b strings.Builder
	if err := bankTemplates.ExecuteTemplate(&b, name, info); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return b.String(), nil
}

// defaultGlobalRules returns the rules written by InitializeGlobalRules.
func defaultGlobalRules() string {
	data, err := templateFS.ReadFile("templates/global-rules.mdc")
	if err != nil {
		panic(err)
	}
	return string(data)
}

func defaultCursorRules() string {
	data, err := templateFS.ReadFile("templates/cursorrules")
	if err != nil {
		panic(err)
	}
	return string(data)
}
