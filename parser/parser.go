// Package parser flattens exported bookmark trees into alias-unique records.
//
// The walk is iterative: an explicit stack of frames carries each node with
// its depth and folder breadcrumb, so pathological nesting is rejected with
// errors.ErrMaxDepthExceeded instead of growing the goroutine stack.
package parser

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/shelf/errors"
	"github.com/teranos/shelf/logger"
	"github.com/teranos/shelf/unit"
)

// Name is the name the parser is registered under.
const Name = "parser"

// Version of the parser unit.
const Version = "1.0.0"

// ctxCheckInterval is how many nodes are visited between cancellation checks.
const ctxCheckInterval = 512

// Unit is the tree parser as a registry unit.
type Unit struct {
	mu     sync.RWMutex
	cfg    Config
	logger *zap.SugaredLogger
}

var (
	_ unit.Unit         = (*Unit)(nil)
	_ unit.Configurable = (*Unit)(nil)
	_ unit.Reentrant    = (*Unit)(nil)
)

// New creates a parser with the default configuration.
func New(log *zap.SugaredLogger) *Unit {
	return &Unit{
		cfg:    DefaultConfig(),
		logger: logger.OrNop(log),
	}
}

// Describe returns the parser descriptor.
func (u *Unit) Describe() unit.Descriptor {
	return unit.Descriptor{
		Name:        Name,
		Version:     Version,
		Author:      "shelf",
		Description: "Flattens nested bookmark trees (JSON or Netscape HTML) into alias-unique records",
	}
}

// Reentrant reports that Execute may run concurrently; each call works on
// its own snapshot of the configuration.
func (u *Unit) Reentrant() bool { return true }

// ConfigSchema describes the accepted options.
func (u *Unit) ConfigSchema() map[string]unit.ConfigField {
	return configSchema
}

// Configure validates opts and swaps the configuration in only on success.
func (u *Unit) Configure(opts unit.Options) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	next, err := u.cfg.withOptions(opts)
	if err != nil {
		return err
	}
	u.cfg = next
	return nil
}

// Config returns a copy of the active configuration.
func (u *Unit) Config() Config {
	u.mu.RLock()
	defer u.mu.RUnlock()
	c := u.cfg
	c.AllowedSchemes = slices.Clone(u.cfg.AllowedSchemes)
	return c
}

// Execute parses args.Input and returns a *Result.
func (u *Unit) Execute(ctx context.Context, args unit.Args) (any, error) {
	cfg := u.Config()

	roots, err := decodeInput(args.Input, cfg)
	if err != nil {
		return nil, unit.NewExecutionError(err, nil)
	}

	res, err := Parse(ctx, roots, cfg)
	log := logger.FromContext(ctx, u.logger)
	if err != nil {
		return nil, unit.NewExecutionError(err, res)
	}

	log.Infow("Parsed bookmark tree",
		logger.FieldParsed, res.ParsedCount,
		logger.FieldSkipped, res.Skipped)
	for _, m := range res.Malformed {
		log.Debugw("Skipped malformed node",
			"reason", m.Reason,
			logger.FieldPath, strings.Join(m.Path, "/"),
			logger.FieldURL, m.URL)
	}
	return res, nil
}

type frame struct {
	node  *Node
	depth int
	path  *crumb
}

// crumb is one folder title in a breadcrumb, linked to its parent so that
// entering a folder costs O(1) regardless of depth.
type crumb struct {
	parent *crumb
	title  string
	n      int
}

func (c *crumb) push(title string) *crumb {
	n := 1
	if c != nil {
		n = c.n + 1
	}
	return &crumb{parent: c, title: title, n: n}
}

func (c *crumb) slice() []string {
	if c == nil {
		return []string{}
	}
	out := make([]string, c.n)
	for cur := c; cur != nil; cur = cur.parent {
		out[cur.n-1] = cur.title
	}
	return out
}

// Parse walks the forest rooted at roots in document order.
//
// On failure the returned *Result holds the records emitted before the
// failing node; the error wraps errors.ErrMaxDepthExceeded,
// errors.ErrTooLarge or the context error.
func Parse(ctx context.Context, roots []*Node, cfg Config) (*Result, error) {
	res := &Result{Records: []FlatRecord{}}
	aliases := newAliasSet(cfg.MaxAliasLength)

	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: roots[i], depth: 1})
	}

	visited := 0
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		visited++
		if visited%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return res, errors.Wrap(err, "parse cancelled")
			}
		}
		if visited > cfg.MaxNodes {
			return res, errors.WithHint(
				errors.Wrapf(errors.ErrTooLarge, "more than %d nodes", cfg.MaxNodes),
				"raise parser.max_nodes or split the export")
		}

		n := f.node
		switch {
		case n == nil:
			res.skip(f.path, nil, "null node")
			continue
		case n.malformed != "":
			res.skip(f.path, n, n.malformed)
			continue
		case n.IsLeaf():
			rawURL, reason := cfg.checkURL(n.URL)
			if reason != "" {
				res.skip(f.path, n, reason)
				continue
			}
			title := strings.TrimSpace(n.Title)
			res.Records = append(res.Records, FlatRecord{
				URL:         rawURL,
				Title:       title,
				Path:        f.path.slice(),
				Alias:       aliases.assign(n.Alias, title, rawURL),
				Date:        formatDate(n.AddDate),
				Description: strings.TrimSpace(n.Description),
			})
			continue
		}

		if f.depth > cfg.MaxDepth {
			return res, errors.WithHint(
				errors.Wrapf(errors.ErrMaxDepthExceeded, "folder %s at depth %d (limit %d)",
					shortPath(f.path.push(strings.TrimSpace(n.Title)).slice()), f.depth, cfg.MaxDepth),
				"raise parser.max_depth")
		}

		path := f.path
		if title := strings.TrimSpace(n.Title); title != "" {
			path = f.path.push(title)
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: n.Children[i], depth: f.depth + 1, path: path})
		}
	}

	res.ParsedCount = len(res.Records)
	return res, nil
}

// Error messages name at most errorCrumbs breadcrumb segments, each cut to
// errorCrumbLen characters.
const (
	errorCrumbs   = 6
	errorCrumbLen = 40
)

// shortPath renders a breadcrumb for an error message, keeping the outermost
// and innermost folders around an elision.
func shortPath(segments []string) string {
	var keep []string
	if len(segments) > errorCrumbs {
		half := errorCrumbs / 2
		keep = make([]string, 0, errorCrumbs+1)
		keep = append(keep, segments[:half]...)
		keep = append(keep, "…")
		keep = append(keep, segments[len(segments)-half:]...)
	} else {
		keep = slices.Clone(segments)
	}
	for i, s := range keep {
		if r := []rune(s); len(r) > errorCrumbLen {
			keep[i] = string(r[:errorCrumbLen]) + "…"
		}
	}
	return "/" + strings.Join(keep, "/")
}

func (r *Result) skip(path *crumb, n *Node, reason string) {
	m := Malformed{Path: path.slice(), Reason: reason}
	if n != nil {
		m.Title = n.Title
		m.URL = n.URL
	}
	r.Malformed = append(r.Malformed, m)
	r.Skipped++
}

// checkURL returns the trimmed url, or a reason the leaf must be skipped.
func (c Config) checkURL(raw string) (string, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "empty url"
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", "unparsable url"
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return "", "url has no scheme"
	}
	if !c.schemeAllowed(scheme) {
		return "", fmt.Sprintf("scheme %q not allowed", scheme)
	}
	switch scheme {
	case "http", "https", "ftp":
		if u.Host == "" {
			return "", "url has no host"
		}
	}
	return trimmed, ""
}
