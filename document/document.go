// Package document finds event references in text fragments and resolves
// them, once per fragment.
//
// A Processor remembers which fragments it has handled by fragment id, not
// by content: the same text at two positions is two fragments. A fragment
// whose references failed to resolve is still marked, so repeated passes
// over a document do not retry it.
package document

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"xdao.co/nref/nip19"
	"xdao.co/nref/resolver"
)

// Fragment is a piece of document text with a stable id.
type Fragment struct {
	ID   string
	Text string
}

// Block is the rendering of one reference found in a fragment.
type Block struct {
	FragmentID string
	Ref        string
	Start, End int

	// Outcome is set when the reference resolved; Err otherwise.
	Outcome *resolver.Outcome
	Err     error

	// Link is the web client URL for Ref, empty when links are disabled.
	Link string
}

// Resolver is the part of *resolver.Resolver a Processor needs.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (resolver.Outcome, error)
}

type Options struct {
	Resolver Resolver

	// LinkTemplate renders Block.Link; "{ref}" is replaced by the bare
	// reference. Empty disables links.
	LinkTemplate string

	Logger *slog.Logger
}

type Processor struct {
	resolver Resolver
	template string
	logger   *slog.Logger

	mu   sync.Mutex
	seen map[string]bool
}

func NewProcessor(opts Options) *Processor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Processor{
		resolver: opts.Resolver,
		template: opts.LinkTemplate,
		logger:   logger,
		seen:     map[string]bool{},
	}
}

// Process resolves the references in every fragment not processed before.
// Fragments without references are left unmarked.
func (p *Processor) Process(ctx context.Context, frags []Fragment) []Block {
	var out []Block
	for _, f := range frags {
		if p.Seen(f.ID) {
			continue
		}
		if strings.TrimSpace(f.Text) == "" {
			continue
		}
		matches := nip19.FindAll(f.Text)
		if len(matches) == 0 {
			continue
		}
		for _, m := range matches {
			b := Block{FragmentID: f.ID, Ref: m.Ref, Start: m.Start, End: m.End, Link: Link(p.template, m.Ref)}
			outcome, err := p.resolver.Resolve(ctx, m.Ref)
			if err != nil {
				p.logger.Warn("document: failed to resolve reference", "fragment", f.ID, "err", err)
				b.Err = err
			} else {
				b.Outcome = &outcome
			}
			out = append(out, b)
		}
		p.mark(f.ID)
	}
	return out
}

func (p *Processor) Seen(fragmentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seen[fragmentID]
}

// Reset forgets every processed fragment.
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = map[string]bool{}
}

func (p *Processor) mark(fragmentID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen[fragmentID] = true
}

// Link fills template with ref, stripped of any nostr: prefix.
func Link(template, ref string) string {
	if template == "" {
		return ""
	}
	if len(ref) >= len(nip19.URIPrefix) && strings.EqualFold(ref[:len(nip19.URIPrefix)], nip19.URIPrefix) {
		ref = ref[len(nip19.URIPrefix):]
	}
	return strings.ReplaceAll(template, "{ref}", ref)
}
