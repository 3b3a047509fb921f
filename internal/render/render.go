package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/aurora-erp/aurora-erp/internal/shared"
)

// Program is a parsed template: a flat source string lowered once into a
// token tree, rendered many times. Rendering performs lookup and iteration
// only — template content is never evaluated as code.
type Program struct {
	nodes []node
}

type node interface {
	render(sb *strings.Builder, scope map[string]any)
}

type literalNode struct {
	text string
}

func (n literalNode) render(sb *strings.Builder, _ map[string]any) {
	sb.WriteString(n.text)
}

type fieldNode struct {
	path []string
}

func (n fieldNode) render(sb *strings.Builder, scope map[string]any) {
	sb.WriteString(html.EscapeString(lookup(scope, n.path)))
}

type sectionNode struct {
	name     string
	children []node
}

func (n sectionNode) render(sb *strings.Builder, scope map[string]any) {
	value, ok := scope[n.name]
	if !ok || value == nil {
		return
	}
	for _, element := range elements(value) {
		// The element becomes the top-level scope inside the block.
		for _, child := range n.children {
			child.render(sb, element)
		}
	}
}

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Parse lowers template source into a Program. The only recognised
// constructs are {{field}}, {{a.b.c}}, {{#list}} and {{/list}}; everything
// else is literal text. Unbalanced sections fail at parse time.
func Parse(src string) (*Program, error) {
	root := &sectionNode{}
	stack := []*sectionNode{root}

	rest := src
	for {
		open := strings.Index(rest, openDelim)
		if open < 0 {
			break
		}
		end := strings.Index(rest[open:], closeDelim)
		if end < 0 {
			break
		}
		if open > 0 {
			top := stack[len(stack)-1]
			top.children = append(top.children, literalNode{text: rest[:open]})
		}
		tag := strings.TrimSpace(rest[open+len(openDelim) : open+end])
		rest = rest[open+end+len(closeDelim):]

		switch {
		case strings.HasPrefix(tag, "#"):
			section := &sectionNode{name: strings.TrimSpace(tag[1:])}
			if section.name == "" {
				return nil, shared.NewValidationError("template", "empty section name")
			}
			stack = append(stack, section)
		case strings.HasPrefix(tag, "/"):
			name := strings.TrimSpace(tag[1:])
			if len(stack) == 1 {
				return nil, shared.NewValidationError("template", fmt.Sprintf("unexpected section close %q", name))
			}
			section := stack[len(stack)-1]
			if section.name != name {
				return nil, shared.NewValidationError("template",
					fmt.Sprintf("section close %q does not match open %q", name, section.name))
			}
			stack = stack[:len(stack)-1]
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, *section)
		case tag == "":
			// {{}} is literal noise, keep it as written.
			top := stack[len(stack)-1]
			top.children = append(top.children, literalNode{text: openDelim + closeDelim})
		default:
			top := stack[len(stack)-1]
			top.children = append(top.children, fieldNode{path: strings.Split(tag, ".")})
		}
	}
	if len(stack) > 1 {
		return nil, shared.NewValidationError("template",
			fmt.Sprintf("section %q is never closed", stack[len(stack)-1].name))
	}
	if rest != "" {
		root.children = append(root.children, literalNode{text: rest})
	}
	return &Program{nodes: root.children}, nil
}

// Render substitutes data into the parsed template. Output is deterministic
// for identical inputs; the renderer itself holds no state and reads no
// clock.
func (p *Program) Render(data map[string]any) string {
	var sb strings.Builder
	for _, n := range p.nodes {
		n.render(&sb, data)
	}
	return sb.String()
}

// lookup walks a dotted path through nested maps. A missing or nil segment
// renders as the empty string, never the literal word "null".
func lookup(scope map[string]any, path []string) string {
	var current any = scope
	for _, segment := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = m[segment]
		if !ok {
			return ""
		}
	}
	return stringify(current)
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case float64:
		// Trim the ".000000" noise fmt would add for whole numbers.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func elements(value any) []map[string]any {
	switch v := value.(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
