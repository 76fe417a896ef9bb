// internal/browser/content.go
package browser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedElements never contribute readable text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Head:     true,
}

// blockElements end the current line of text.
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.Tr: true, atom.Table: true, atom.Section: true, atom.Article: true, atom.Header: true,
	atom.Footer: true, atom.Nav: true, atom.Main: true, atom.Form: true, atom.Pre: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Dd: true, atom.Dt: true, atom.Hr: true,
}

// ReadableText converts an HTML fragment into plain text: scripts and styles are dropped,
// block elements become line breaks, whitespace runs collapse, and link targets are kept
// in brackets after the link text.
func ReadableText(fragment string) (string, error) {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), &html.Node{
		Type:     html.ElementNode,
		Data:     "body",
		DataAtom: atom.Body,
	})
	if err != nil {
		return "", err
	}

	var w textWriter
	for _, n := range nodes {
		w.walk(n)
	}
	return w.String(), nil
}

type textWriter struct {
	lines   []string
	current strings.Builder
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.writeWords(n.Data)
		return
	case html.ElementNode:
		if skippedElements[n.DataAtom] {
			return
		}
		if blockElements[n.DataAtom] {
			w.breakLine()
			defer w.breakLine()
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}

	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		if href := attr(n, "href"); href != "" && !strings.HasPrefix(href, "javascript:") {
			w.writeWords("[" + href + "]")
		}
	}
}

func (w *textWriter) writeWords(s string) {
	for _, word := range strings.Fields(s) {
		if w.current.Len() > 0 {
			w.current.WriteByte(' ')
		}
		w.current.WriteString(word)
	}
}

func (w *textWriter) breakLine() {
	if w.current.Len() == 0 {
		return
	}
	w.lines = append(w.lines, w.current.String())
	w.current.Reset()
}

func (w *textWriter) String() string {
	w.breakLine()
	return strings.Join(w.lines, "\n")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
