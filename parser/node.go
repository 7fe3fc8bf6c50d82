package parser

import (
	"strings"
	"time"

	"github.com/teranos/shelf/errors"
)

// Node is one node of an exported bookmark tree.
// A node carrying a url is a bookmark leaf and its children are ignored;
// any other node is a folder.
type Node struct {
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Children    []*Node `json:"children,omitempty"`
	AddDate     int64   `json:"add_date,omitempty"`
	Description string  `json:"description,omitempty"`
	// Alias is a preferred alias base set by the exporter, if any.
	Alias string `json:"alias,omitempty"`

	hasURL    bool   // url key present in the source document
	malformed string // reason the node could not be decoded
}

// IsLeaf reports whether n is a bookmark leaf.
func (n *Node) IsLeaf() bool {
	return n.hasURL || n.URL != ""
}

// Malformed returns the decode problem recorded for n, or "".
func (n *Node) Malformed() string {
	return n.malformed
}

// UnmarshalJSON decodes a node without failing on structural problems.
// A non-object node, a non-string title, url, alias or description, or a
// children value that is not an array marks the node malformed; the parser
// skips and counts it.
func (n *Node) UnmarshalJSON(data []byte) error {
	d := newTreeDecoder(data, 0, 0)
	tok, err := d.token()
	if err != nil {
		return err
	}
	decoded, err := d.node(tok, 1, false)
	if err != nil {
		return errors.Wrap(err, "decode node")
	}
	if decoded == nil {
		decoded = &Node{malformed: "node is not an object"}
	}
	*n = *decoded
	return nil
}

// FlatRecord is one bookmark leaf flattened out of the tree.
type FlatRecord struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Path        []string `json:"path"`
	Alias       string   `json:"alias"`
	Date        string   `json:"date,omitempty"`
	Description string   `json:"description,omitempty"`
}

// Group returns the innermost folder of the record, or "".
func (r FlatRecord) Group() string {
	if len(r.Path) == 0 {
		return ""
	}
	return r.Path[len(r.Path)-1]
}

// Malformed describes a node that was skipped during a parse.
type Malformed struct {
	Path   []string `json:"path"`
	Title  string   `json:"title,omitempty"`
	URL    string   `json:"url,omitempty"`
	Reason string   `json:"reason"`
}

// Err returns the skip as an error matching errors.ErrMalformedNode.
func (m Malformed) Err() error {
	return errors.Wrapf(errors.ErrMalformedNode, "%s at /%s", m.Reason, strings.Join(m.Path, "/"))
}

// Result is the output of one parse.
type Result struct {
	Records     []FlatRecord `json:"records"`
	ParsedCount int          `json:"parsedCount"`
	Skipped     int          `json:"skipped"`
	Malformed   []Malformed  `json:"malformed,omitempty"`
}

func formatDate(unix int64) string {
	if unix <= 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}
