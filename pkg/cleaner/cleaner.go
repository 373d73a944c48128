// Package cleaner rebuilds untrusted question HTML into a small, safe subset
// and renders it for display.
//
// Text content is kept as decoded by the parser and re-encoded on output, so
// only &, < and > are escaped; entities such as &nbsp; come back as literal
// characters.
package cleaner

import (
	"net/url"
	"strings"
)

// Cleaner transforms HTML content into a cleaner format.
type Cleaner interface {
	// Clean transforms the input HTML into a cleaned format.
	Clean(html string) (string, error)

	// Name returns the cleaner type for logging/debugging.
	Name() string
}

// StripSelector matches elements removed from a document once, before any
// block of it is cleaned.
const StripSelector = "script, style, link, meta, button, input"

// Container wraps a cleaned block for display.
const (
	containerOpen  = `<div style="font-family: sans-serif; font-size: 14px; color: #333; line-height: 1.6;">`
	containerClose = `</div>`
	listStyle      = `margin-left: 20px; padding-left: 10px;`
	imageStyle     = `max-width: 100%; height: auto;`
)

var allowed = map[string]bool{
	"p": true, "ul": true, "ol": true, "li": true, "br": true,
	"strong": true, "em": true, "u": true, "b": true, "i": true,
	"h1": true, "h2": true, "h3": true,
	"table": true, "tr": true, "td": true, "th": true, "thead": true, "tbody": true,
}

// blockLevel children force an unwrapped element to keep a bare div.
var blockLevel = map[string]bool{"p": true, "ul": true, "ol": true, "div": true}

var textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
var attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;")

// Whitelist rebuilds a Node tree keeping only allowed tags, with every
// attribute dropped except image sources, which are resolved against the
// base URL. A Whitelist collects the images it emits, so use one per document.
type Whitelist struct {
	base   *url.URL
	raw    string
	images []string
	seen   map[string]bool
}

// New returns a Whitelist resolving image sources against baseURL.
// An empty or unparseable base leaves sources as written.
func New(baseURL string) *Whitelist {
	w := &Whitelist{raw: baseURL, seen: make(map[string]bool)}
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil {
			w.base = u
		}
	}
	return w
}

// Name returns the cleaner type.
func (w *Whitelist) Name() string { return "whitelist" }

// Images returns the distinct resolved image URLs in first-seen order.
func (w *Whitelist) Images() []string {
	return append([]string(nil), w.images...)
}

// Clean parses a full document, strips non-content elements and renders the
// body inside the display container.
func (w *Whitelist) Clean(html string) (string, error) {
	root, err := ParseString(html)
	if err != nil {
		return "", err
	}
	return w.Render(Prune(root)), nil
}

// Render cleans n and wraps the result in the display container.
func (w *Whitelist) Render(n *Node) string {
	return "\n" + containerOpen + "\n" + w.Node(n) + "\n" + containerClose + "\n"
}

// Node rebuilds n as cleaned HTML.
func (w *Whitelist) Node(n *Node) string {
	var sb strings.Builder
	w.write(&sb, n)
	return sb.String()
}

func (w *Whitelist) write(sb *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	if n.Type() == TextNode {
		sb.WriteString(textEscaper.Replace(n.Data()))
		return
	}

	tag := n.Tag()
	switch {
	case tag == "img":
		src, ok := n.Attr("src")
		if !ok {
			return
		}
		abs := w.resolve(src)
		if !w.seen[abs] {
			w.seen[abs] = true
			w.images = append(w.images, abs)
		}
		sb.WriteString(`<img src="`)
		sb.WriteString(attrEscaper.Replace(abs))
		sb.WriteString(`" style="` + imageStyle + `" />`)
	case tag == "br":
		sb.WriteString("<br>")
	case allowed[tag]:
		sb.WriteString("<" + tag)
		if tag == "ul" || tag == "ol" {
			sb.WriteString(` style="` + listStyle + `"`)
		}
		sb.WriteString(">")
		w.writeChildren(sb, n)
		sb.WriteString("</" + tag + ">")
	case hasBlockChild(n):
		sb.WriteString("<div>")
		w.writeChildren(sb, n)
		sb.WriteString("</div>")
	default:
		w.writeChildren(sb, n)
	}
}

func (w *Whitelist) writeChildren(sb *strings.Builder, n *Node) {
	for _, c := range n.Children() {
		w.write(sb, c)
	}
}

func (w *Whitelist) resolve(src string) string {
	if w.base == nil {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return w.base.ResolveReference(ref).String()
}

func hasBlockChild(n *Node) bool {
	for _, c := range n.Children() {
		if c.Type() == ElementNode && blockLevel[c.Tag()] {
			return true
		}
	}
	return false
}

var stripped = map[string]bool{
	"script": true, "style": true, "link": true, "meta": true, "button": true, "input": true,
}

// Prune returns a copy of n without the elements matched by StripSelector.
// Also drops the document head so only body content is rendered.
func Prune(n *Node) *Node {
	if n == nil || n.Type() == TextNode {
		return n
	}
	kids := make([]*Node, 0, len(n.Children()))
	for _, c := range n.Children() {
		if c.Type() == ElementNode && (stripped[c.Tag()] || c.Tag() == "head") {
			continue
		}
		kids = append(kids, Prune(c))
	}
	return &Node{typ: n.typ, tag: n.tag, attrs: n.attrs, children: kids}
}
