// Package render turns a carbon intensity reading into the HTML page served on /carbon_intensity.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"text/template/parse"

	"github.com/alisaviation/carbonintensity/internal/helpers"
)

var ErrPlaceholderCount = errors.New("template must contain exactly one placeholder")

type page struct {
	Counter string
}

// Renderer is read-only after Load and safe for concurrent use.
type Renderer struct {
	tmpl *template.Template
}

// Load reads and validates the template at path. The template must contain exactly one
// action, {{.Counter}}.
func Load(path string) (*Renderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	r, err := Parse(filepath.Base(path), string(data))
	if err != nil {
		return nil, fmt.Errorf("load template %s: %w", path, err)
	}
	return r, nil
}

func Parse(name, text string) (*Renderer, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	if n := countActions(tmpl.Tree.Root); n != 1 {
		return nil, fmt.Errorf("%w: found %d", ErrPlaceholderCount, n)
	}

	r := &Renderer{tmpl: tmpl}
	if _, err := r.Render(0); err != nil {
		return nil, err
	}
	return r, nil
}

// Render substitutes the textual form of value into the template.
func (r *Renderer) Render(value float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, page{Counter: helpers.FormatFloat(value)}); err != nil {
		return nil, fmt.Errorf("execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func countActions(node parse.Node) int {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return 0
		}
		total := 0
		for _, child := range n.Nodes {
			total += countActions(child)
		}
		return total
	case *parse.ActionNode:
		return 1
	case *parse.IfNode:
		return 1 + countActions(n.List) + countActions(n.ElseList)
	case *parse.RangeNode:
		return 1 + countActions(n.List) + countActions(n.ElseList)
	case *parse.WithNode:
		return 1 + countActions(n.List) + countActions(n.ElseList)
	case *parse.TemplateNode:
		return 1
	default:
		return 0
	}
}
