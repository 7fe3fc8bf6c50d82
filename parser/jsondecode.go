package parser

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/teranos/shelf/errors"
)

// treeDecoder builds nodes from a JSON token stream. Objects still being
// filled sit on an explicit stack, so decoding stays linear in the document
// size whatever the nesting.
type treeDecoder struct {
	dec *json.Decoder

	// maxDepth stops materializing children below depth maxDepth+1. Parse
	// rejects a folder at that depth before visiting any of its children,
	// so they are consumed unread. Zero means no limit.
	maxDepth int
	// maxNodes fails the decode once exceeded. Zero means no limit.
	maxNodes int
	nodes    int

	// roots holds a Chromium profile's root folders when the document
	// object carries a "roots" member.
	roots map[string]*Node
}

// openNode is a node object whose closing brace has not been read yet.
type openNode struct {
	node       *Node
	depth      int
	document   bool // top-level object of the document
	inChildren bool
	titleSet   bool

	titleBad, urlBad, aliasBad, descriptionBad, childrenBad bool
}

func newTreeDecoder(data []byte, maxDepth, maxNodes int) *treeDecoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return &treeDecoder{dec: dec, maxDepth: maxDepth, maxNodes: maxNodes}
}

// decodeJSONForest decodes a JSON document holding a node, an array of nodes
// or a Chromium profile file, applying cfg.MaxDepth and cfg.MaxNodes as it
// reads.
func decodeJSONForest(data []byte, cfg Config) ([]*Node, error) {
	d := newTreeDecoder(data, cfg.MaxDepth, cfg.MaxNodes)
	tok, err := d.token()
	if err != nil {
		return nil, err
	}

	var forest []*Node
	if tok == json.Delim('[') {
		forest = []*Node{}
		for {
			if tok, err = d.token(); err != nil {
				return nil, err
			}
			if tok == json.Delim(']') {
				break
			}
			n, err := d.node(tok, 1, false)
			if err != nil {
				return nil, err
			}
			forest = append(forest, n)
		}
	} else {
		root, err := d.node(tok, 1, true)
		if err != nil {
			return nil, err
		}
		if len(d.roots) > 0 {
			forest = chromeForest(d.roots)
		} else {
			forest = []*Node{root}
		}
	}

	if _, err := d.dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.NewInvalidRequestError("decode tree: trailing data after document")
	}
	return forest, nil
}

func (d *treeDecoder) token() (json.Token, error) {
	tok, err := d.dec.Token()
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "decode tree: %v", err)
	}
	return tok, nil
}

// node decodes the value starting with tok as a node at depth.
func (d *treeDecoder) node(tok json.Token, depth int, document bool) (*Node, error) {
	root, open, err := d.begin(tok, depth)
	if open == nil || err != nil {
		return root, err
	}
	open.document = document

	stack := []*openNode{open}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		tok, err := d.token()
		if err != nil {
			return nil, err
		}

		if top.inChildren {
			if tok == json.Delim(']') {
				top.inChildren = false
				continue
			}
			child, open, err := d.begin(tok, top.depth+1)
			if err != nil {
				return nil, err
			}
			top.node.Children = append(top.node.Children, child)
			if open != nil {
				stack = append(stack, open)
			}
			continue
		}

		if tok == json.Delim('}') {
			top.finish()
			stack = stack[:len(stack)-1]
			continue
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Wrapf(errors.ErrInvalidRequest, "decode tree: unexpected %v in object", tok)
		}
		if err := d.field(top, key); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// begin starts the node value whose first token is tok. An object comes
// back open for its members; null yields a nil node and any other value is
// consumed whole into a malformed one.
func (d *treeDecoder) begin(tok json.Token, depth int) (*Node, *openNode, error) {
	d.nodes++
	if d.maxNodes > 0 && d.nodes > d.maxNodes {
		return nil, nil, errors.WithHint(
			errors.Wrapf(errors.ErrTooLarge, "more than %d nodes", d.maxNodes),
			"raise parser.max_nodes or split the export")
	}

	switch tok {
	case nil:
		return nil, nil, nil
	case json.Delim('{'):
		n := &Node{}
		return n, &openNode{node: n, depth: depth}, nil
	}
	if err := d.skip(tok); err != nil {
		return nil, nil, err
	}
	return &Node{malformed: "node is not an object"}, nil, nil
}

func (d *treeDecoder) field(o *openNode, key string) error {
	tok, err := d.token()
	if err != nil {
		return err
	}
	n := o.node

	switch key {
	case "title", "name":
		// Chromium profile files call it "name"
		if key == "name" && o.titleSet {
			return d.skip(tok)
		}
		if key == "title" {
			o.titleSet = true
		}
		o.titleBad, err = d.str(tok, &n.Title)
	case "url":
		if tok == nil {
			return nil
		}
		n.hasURL = true
		o.urlBad, err = d.str(tok, &n.URL)
	case "description":
		o.descriptionBad, err = d.str(tok, &n.Description)
	case "alias":
		o.aliasBad, err = d.str(tok, &n.Alias)
	case "add_date":
		n.AddDate, err = d.timestamp(tok)
	case "children":
		return d.children(o, tok)
	case "roots":
		if o.document && tok == json.Delim('{') {
			return d.chromeRoots()
		}
		return d.skip(tok)
	default:
		return d.skip(tok)
	}
	return err
}

func (d *treeDecoder) children(o *openNode, tok json.Token) error {
	switch {
	case tok == nil:
		return nil
	case tok != json.Delim('['):
		o.childrenBad = true
		return d.skip(tok)
	}

	o.childrenBad = false
	o.node.Children = []*Node{}
	if d.maxDepth > 0 && o.depth > d.maxDepth {
		return d.skip(tok)
	}
	o.inChildren = true
	return nil
}

func (d *treeDecoder) chromeRoots() error {
	if d.roots == nil {
		d.roots = make(map[string]*Node)
	}
	for {
		tok, err := d.token()
		if err != nil {
			return err
		}
		if tok == json.Delim('}') {
			return nil
		}
		key, _ := tok.(string)
		if tok, err = d.token(); err != nil {
			return err
		}
		n, err := d.node(tok, 1, false)
		if err != nil {
			return err
		}
		d.roots[key] = n
	}
}

// str stores a string token in dst. Null leaves dst alone; any other value
// is consumed and reported as bad.
func (d *treeDecoder) str(tok json.Token, dst *string) (bool, error) {
	switch v := tok.(type) {
	case nil:
		return false, nil
	case string:
		*dst = v
		return false, nil
	}
	return true, d.skip(tok)
}

// timestamp accepts unix seconds as a number or a string, as browsers
// disagree on which to emit. Unparsable values decode to zero.
func (d *treeDecoder) timestamp(tok json.Token) (int64, error) {
	switch v := tok.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), nil
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return i, nil
		}
	}
	return 0, d.skip(tok)
}

// skip consumes the rest of the value that starts with tok.
func (d *treeDecoder) skip(tok json.Token) error {
	if tok != json.Delim('{') && tok != json.Delim('[') {
		return nil
	}
	for depth := 1; depth > 0; {
		tok, err := d.token()
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
	return nil
}

// finish records the first decode problem found on the node.
func (o *openNode) finish() {
	n := o.node
	switch {
	case o.childrenBad && !n.IsLeaf():
		n.malformed = "children is not an array"
	case o.urlBad:
		n.malformed = "url is not a string"
	case o.titleBad:
		n.malformed = "title is not a string"
	case o.aliasBad:
		n.malformed = "alias is not a string"
	case o.descriptionBad:
		n.malformed = "description is not a string"
	}
}

// chromeRootOrder is the order Chromium shows its root folders in.
var chromeRootOrder = []string{"bookmark_bar", "other", "synced", "mobile"}

func chromeForest(roots map[string]*Node) []*Node {
	out := make([]*Node, 0, len(roots))
	for _, key := range chromeRootOrder {
		if n, ok := roots[key]; ok && n != nil {
			out = append(out, n)
		}
	}
	return out
}
