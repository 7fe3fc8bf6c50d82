package parser

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/teranos/shelf/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeInput turns an execution input into the forest to walk.
func decodeInput(input any, cfg Config) ([]*Node, error) {
	switch v := input.(type) {
	case nil:
		return nil, errors.NewInvalidRequestError("no input tree")
	case *Node:
		if v == nil {
			return nil, errors.NewInvalidRequestError("no input tree")
		}
		return []*Node{v}, nil
	case Node:
		return []*Node{&v}, nil
	case []*Node:
		return v, nil
	case []Node:
		out := make([]*Node, len(v))
		for i := range v {
			out[i] = &v[i]
		}
		return out, nil
	case json.RawMessage:
		return DecodeDocument(v, cfg)
	case []byte:
		return DecodeDocument(v, cfg)
	case string:
		return DecodeDocument([]byte(v), cfg)
	case io.Reader:
		data, err := ReadLimited(v, cfg.MaxDocumentBytes)
		if err != nil {
			return nil, err
		}
		return DecodeDocument(data, cfg)
	default:
		return nil, errors.NewInvalidRequestError("unsupported input type %T", input)
	}
}

// ReadLimited reads r fully, failing with errors.ErrTooLarge past maxBytes.
func ReadLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "read document")
	}
	if int64(len(data)) > maxBytes {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrTooLarge, "document exceeds %d bytes", maxBytes),
			"raise parser.max_document_bytes")
	}
	return data, nil
}

// DecodeDocument sniffs data and decodes it as Netscape bookmark HTML
// (leading '<'), a JSON array of nodes, a Chromium profile file, or a
// single JSON node. JSON is decoded against cfg.MaxDepth and cfg.MaxNodes.
func DecodeDocument(data []byte, cfg Config) ([]*Node, error) {
	if maxBytes := cfg.MaxDocumentBytes; maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrTooLarge, "document exceeds %d bytes", maxBytes),
			"raise parser.max_document_bytes")
	}

	data = bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(data) == 0 {
		return nil, errors.NewInvalidRequestError("empty document")
	}

	switch data[0] {
	case '<':
		root, err := ParseNetscape(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		// The untitled root adds no breadcrumb; walking its children keeps
		// top-level folders at depth 1 as in JSON exports.
		return root.Children, nil
	case '[', '{':
		return decodeJSONForest(data, cfg)
	default:
		return nil, errors.NewInvalidRequestError("document is neither JSON nor HTML")
	}
}
