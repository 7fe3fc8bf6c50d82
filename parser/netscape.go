package parser

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/teranos/shelf/errors"
)

// ParseNetscape reads a Netscape bookmark file (the HTML export format used
// by every major browser) and returns its content under an untitled root.
//
// Folders are <DT><H3>title</H3> followed by a <DL> holding their entries;
// bookmarks are <DT><A HREF=... ADD_DATE=... DESCRIPTION=...>title</A>,
// optionally followed by <DD>description text. The document is tokenized
// rather than parsed into a DOM because browsers never close <DT>, and the
// folder stack is explicit so nesting depth costs heap, not goroutine stack.
func ParseNetscape(r io.Reader) (*Node, error) {
	root := &Node{}
	folders := []*Node{root}
	// dls records, per open <DL>, whether it opened a folder.
	var dls []bool

	var (
		pendingFolder *Node // last <H3> folder waiting for its <DL>
		textTarget    *Node // node whose title is being read (<A> or <H3>)
		text          strings.Builder
		ddTarget      *Node // node receiving <DD> text
		desc          strings.Builder
		lastEntry     *Node
	)

	flushDD := func() {
		if ddTarget != nil && ddTarget.Description == "" {
			ddTarget.Description = strings.TrimSpace(desc.String())
		}
		ddTarget = nil
		desc.Reset()
	}
	top := func() *Node { return folders[len(folders)-1] }

	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, errors.Wrap(err, "tokenize bookmark html")
			}
			flushDD()
			return root, nil

		case html.TextToken:
			if textTarget != nil {
				text.Write(z.Text())
			} else if ddTarget != nil {
				desc.Write(z.Text())
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			a := atom.Lookup(name)
			switch a {
			case atom.Dt, atom.Dl, atom.Dd, atom.H3, atom.A:
				flushDD()
			}

			switch a {
			case atom.Dl:
				if pendingFolder != nil {
					folders = append(folders, pendingFolder)
					dls = append(dls, true)
					pendingFolder = nil
				} else {
					dls = append(dls, false)
				}

			case atom.H3:
				folder := &Node{}
				top().Children = append(top().Children, folder)
				pendingFolder = folder
				textTarget = folder
				lastEntry = folder
				text.Reset()

			case atom.A:
				leaf := &Node{hasURL: true}
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					switch string(key) {
					case "href":
						leaf.URL = string(val)
					case "add_date":
						leaf.AddDate, _ = strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
					case "description":
						leaf.Description = string(val)
					case "shortcuturl", "alias":
						if leaf.Alias == "" {
							leaf.Alias = string(val)
						}
					}
				}
				top().Children = append(top().Children, leaf)
				textTarget = leaf
				lastEntry = leaf
				pendingFolder = nil
				text.Reset()

			case atom.Dd:
				ddTarget = lastEntry
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.H3, atom.A:
				if textTarget != nil {
					textTarget.Title = strings.TrimSpace(text.String())
					textTarget = nil
					text.Reset()
				}
			case atom.Dl:
				flushDD()
				if len(dls) == 0 {
					continue
				}
				opened := dls[len(dls)-1]
				dls = dls[:len(dls)-1]
				if opened && len(folders) > 1 {
					folders = folders[:len(folders)-1]
				}
				lastEntry = nil
			}
		}
	}
}
