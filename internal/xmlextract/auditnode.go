package xmlextract

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// AuditNode is a nested tree mirroring one XML subtree, order-preserving
// for sibling repetitions. It is the audit-mode representation and also
// the intermediate form normalized-mode field extraction walks.
type AuditNode struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*AuditNode
}

// ToValue converts the subtree into a plain JSON-ready value: a leaf with
// no children and no attributes collapses to its text scalar; a node with
// children becomes a map keyed by child name, where repeated sibling names
// become an ordered slice and single occurrences flatten to the child's
// own value directly.
func (n *AuditNode) ToValue() interface{} {
	if n == nil {
		return nil
	}
	if len(n.Children) == 0 && len(n.Attrs) == 0 {
		return n.Text
	}

	obj := make(map[string]interface{}, len(n.Children)+len(n.Attrs))
	for k, v := range n.Attrs {
		obj["@"+k] = v
	}

	counts := make(map[string]int, len(n.Children))
	for _, c := range n.Children {
		counts[c.Name]++
	}

	seen := make(map[string]bool, len(n.Children))
	for _, c := range n.Children {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		if counts[c.Name] > 1 {
			var group []interface{}
			for _, sib := range n.Children {
				if sib.Name == c.Name {
					group = append(group, sib.ToValue())
				}
			}
			obj[c.Name] = group
		} else {
			obj[c.Name] = c.ToValue()
		}
	}
	if len(n.Children) == 0 {
		// attributes only, no text: still expose as an object.
		return obj
	}
	return obj
}

// Child returns the first direct child with the given local name, or nil.
func (n *AuditNode) Child(name string) *AuditNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AllChildren returns every direct child with the given local name, in
// document order.
func (n *AuditNode) AllChildren(name string) []*AuditNode {
	var out []*AuditNode
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Path walks a sequence of child names, one per argument, and returns the
// trimmed text of the node found, or "" if any segment is absent.
func (n *AuditNode) Path(segments ...string) string {
	cur := n
	for _, s := range segments {
		if cur == nil {
			return ""
		}
		cur = cur.Child(s)
	}
	if cur == nil {
		return ""
	}
	return strings.TrimSpace(cur.Text)
}

func attrMap(attrs []xml.Attr) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

// buildSubtree consumes decoder tokens starting right after start was
// read, assembling an AuditNode tree with an explicit stack rather than
// recursive descent, so the traversal depth is data, not call frames.
// It returns once the EndElement matching start has been consumed.
func buildSubtree(dec *xml.Decoder, start xml.StartElement) (*AuditNode, error) {
	root := &AuditNode{Name: start.Name.Local, Attrs: attrMap(start.Attr)}
	stack := []*AuditNode{root}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("malformed subtree under %s: %w", root.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &AuditNode{Name: t.Name.Local, Attrs: attrMap(t.Attr)}
			top := stack[len(stack)-1]
			top.Children = append(top.Children, child)
			stack = append(stack, child)
		case xml.CharData:
			top := stack[len(stack)-1]
			top.Text += string(t)
		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(top.Text)
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return root, nil
			}
		}
	}
}
