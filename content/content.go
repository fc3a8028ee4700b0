// Package content turns free text, usually model output in Markdown, into
// the title and sections that templates bind to.
package content

import (
	"bytes"
	"strings"

	"github.com/russross/blackfriday/v2"
)

// Section is one heading with the text that follows it. Heading is empty for
// sections cut from plain paragraphs.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

// Text returns the heading and body as one block.
func (s Section) Text() string {
	switch {
	case s.Heading == "":
		return s.Body
	case s.Body == "":
		return s.Heading
	default:
		return s.Heading + "\n" + s.Body
	}
}

// Document is the structured form of a text.
type Document struct {
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections"`
}

// Parse reads text as Markdown. A leading level-1 heading becomes the title
// and every other heading starts a section. Text without headings is split
// into one section per paragraph or list.
func Parse(text string) Document {
	md := blackfriday.New(blackfriday.WithExtensions(blackfriday.CommonExtensions))
	root := md.Parse([]byte(normalize(text)))

	var (
		doc      Document
		preamble []Section
		current  *Section
		headings bool
		first    = true
	)
	for block := root.FirstChild; block != nil; block = block.Next {
		txt := plainText(block)
		if block.Type == blackfriday.Heading {
			if first && block.HeadingData.Level == 1 && doc.Title == "" {
				doc.Title = txt
				first = false
				continue
			}
			headings = true
			doc.Sections = append(doc.Sections, Section{Heading: txt})
			current = &doc.Sections[len(doc.Sections)-1]
			first = false
			continue
		}
		first = false
		if txt == "" {
			continue
		}
		if current == nil {
			preamble = append(preamble, Section{Body: txt})
			continue
		}
		if current.Body == "" {
			current.Body = txt
		} else {
			current.Body += "\n" + txt
		}
	}

	if !headings {
		doc.Sections = preamble
	} else if len(preamble) > 0 {
		// 标题之前的段落合并为一个无标题的开篇小节
		intro := Section{Body: joinBodies(preamble)}
		doc.Sections = append([]Section{intro}, doc.Sections...)
	}
	if doc.Sections == nil {
		doc.Sections = []Section{}
	}
	return doc
}

// Body returns every section as one text.
func (d Document) Body() string {
	parts := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		parts = append(parts, s.Text())
	}
	return strings.Join(parts, "\n\n")
}

// Data exposes the document to template bindings: title, body, sections
// (heading and body together), headings and bodies.
func (d Document) Data() map[string]any {
	sections := make([]string, len(d.Sections))
	headings := make([]string, len(d.Sections))
	bodies := make([]string, len(d.Sections))
	for i, s := range d.Sections {
		sections[i] = s.Text()
		headings[i] = s.Heading
		bodies[i] = s.Body
	}
	return map[string]any{
		"title":    d.Title,
		"body":     d.Body(),
		"sections": sections,
		"headings": headings,
		"bodies":   bodies,
		"count":    len(d.Sections),
	}
}

func joinBodies(sections []Section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.Body
	}
	return strings.Join(parts, "\n")
}

func normalize(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
}

// plainText flattens a block to text. List items get a bullet and end with
// a newline; soft breaks become spaces.
func plainText(node *blackfriday.Node) string {
	var b strings.Builder
	node.Walk(func(n *blackfriday.Node, entering bool) blackfriday.WalkStatus {
		if !entering {
			if n.Type == blackfriday.Item || n.Type == blackfriday.Paragraph {
				b.WriteByte('\n')
			}
			return blackfriday.GoToNext
		}
		switch n.Type {
		case blackfriday.Text:
			// 段落内的换行保留在 Literal 中，按空格处理
			b.Write(bytes.ReplaceAll(n.Literal, []byte("\n"), []byte(" ")))
		case blackfriday.Code, blackfriday.CodeBlock, blackfriday.HTMLSpan:
			b.Write(n.Literal)
		case blackfriday.Softbreak, blackfriday.Hardbreak:
			b.WriteByte(' ')
		case blackfriday.Item:
			b.WriteString("• ")
		}
		return blackfriday.GoToNext
	})
	lines := strings.Split(b.String(), "\n")
	out := lines[:0]
	for _, ln := range lines {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
