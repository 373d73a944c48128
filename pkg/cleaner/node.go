package cleaner

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// NodeType distinguishes text from element nodes.
type NodeType int

const (
	TextNode NodeType = iota
	ElementNode
)

// Node is a read-only view of an HTML subtree. It is built once from a parsed
// document and never mutated, so the rebuild in Clean is a pure function of it.
type Node struct {
	typ      NodeType
	tag      string
	attrs    map[string]string
	children []*Node
	text     string
}

// Text returns a text node.
func Text(s string) *Node {
	return &Node{typ: TextNode, text: s}
}

// Element returns an element node. The tag is lowercased and attrs is copied.
func Element(tag string, attrs map[string]string, children ...*Node) *Node {
	n := &Node{
		typ:      ElementNode,
		tag:      strings.ToLower(tag),
		children: append([]*Node(nil), children...),
	}
	if len(attrs) > 0 {
		n.attrs = make(map[string]string, len(attrs))
		for k, v := range attrs {
			n.attrs[strings.ToLower(k)] = v
		}
	}
	return n
}

// Type returns the node type.
func (n *Node) Type() NodeType { return n.typ }

// Tag returns the lowercase tag name, or "" for text nodes.
func (n *Node) Tag() string { return n.tag }

// Data returns the text of a text node.
func (n *Node) Data() string { return n.text }

// Attr returns an attribute value and whether it was present.
func (n *Node) Attr(key string) (string, bool) {
	v, ok := n.attrs[strings.ToLower(key)]
	return v, ok
}

// Children returns the ordered child nodes. Callers must not modify the slice.
func (n *Node) Children() []*Node { return n.children }

// TextContent concatenates all descendant text.
func (n *Node) TextContent() string {
	if n.typ == TextNode {
		return n.text
	}
	var sb strings.Builder
	for _, c := range n.children {
		sb.WriteString(c.TextContent())
	}
	return sb.String()
}

// FromHTML converts an x/net/html subtree into a Node. Document and fragment
// roots become an anonymous container; comments and doctypes are dropped.
func FromHTML(n *html.Node) *Node {
	if n == nil {
		return nil
	}
	switch n.Type {
	case html.TextNode:
		return Text(n.Data)
	case html.ElementNode:
		var attrs map[string]string
		if len(n.Attr) > 0 {
			attrs = make(map[string]string, len(n.Attr))
			for _, a := range n.Attr {
				if _, dup := attrs[a.Key]; !dup {
					attrs[a.Key] = a.Val
				}
			}
		}
		return Element(n.Data, attrs, convertChildren(n)...)
	case html.DocumentNode:
		return &Node{typ: ElementNode, children: convertChildren(n)}
	default:
		return nil
	}
}

func convertChildren(n *html.Node) []*Node {
	var out []*Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if child := FromHTML(c); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// Parse parses a full HTML document into a Node tree.
func Parse(r io.Reader) (*Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return FromHTML(doc), nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Node, error) {
	return Parse(strings.NewReader(s))
}
