// Package tags renders templated tag definitions into resolved tags and
// applies them to workflow executions.
package tags

import (
	"context"
	"regexp"
	"strings"

	finalize "github.com/goliatone/go-finalize"
)

// markerPattern matches an expression placeholder the renderer left behind.
var markerPattern = regexp.MustCompile(`\$\{[^}]*\}`)

// Resolver loads tag definitions for an entity and renders them.
type Resolver struct {
	store  finalize.TagStore
	logger finalize.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger used for dropped definitions.
func WithResolverLogger(logger finalize.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver builds a Resolver reading definitions from store.
func NewResolver(store finalize.TagStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.logger = finalize.NormalizeLogger(r.logger)
	return r
}

// Resolve renders every definition attached to entityID. The only error it
// returns comes from loading the definitions; rendering outcomes never fail.
func (r *Resolver) Resolve(ctx context.Context, entityID string, renderer finalize.ExpressionRenderer) ([]finalize.ResolvedTag, error) {
	if r == nil || r.store == nil {
		return []finalize.ResolvedTag{}, nil
	}
	defs, err := r.store.Definitions(ctx, entityID)
	if err != nil {
		return nil, finalize.External(err, finalize.ErrCodeTagLoadFailed, "failed to load tag definitions",
			map[string]any{"entity_id": entityID})
	}

	resolved := ResolveDefinitions(defs, renderer)
	if dropped := len(defs) - len(resolved); dropped > 0 {
		finalize.WithLoggerFields(r.logger.WithContext(ctx), map[string]any{
			"entity_id": entityID,
		}).Debug("dropped %d tag definitions with unresolvable keys", dropped)
	}
	return resolved, nil
}

// ResolveDefinitions is a stable filter over defs. A definition whose key
// fails to render is dropped; a value that fails to render becomes
// finalize.UnresolvedValue. Names are not deduplicated.
func ResolveDefinitions(defs []finalize.TagDefinition, renderer finalize.ExpressionRenderer) []finalize.ResolvedTag {
	out := make([]finalize.ResolvedTag, 0, len(defs))
	if renderer == nil {
		return out
	}
	for _, def := range defs {
		key, ok := renderer.Render(def.Key)
		if Failed(key, ok) {
			continue
		}

		// an intentionally empty value is kept as is
		value, ok := renderer.Render(def.Value)
		if !ok || ContainsMarker(value) {
			value = finalize.UnresolvedValue
		}

		out = append(out, finalize.ResolvedTag{Name: key, Value: value})
	}
	return out
}

// Failed reports whether a render result is unusable as a tag key: no value,
// an empty string, or a leftover ${...} placeholder.
func Failed(rendered string, ok bool) bool {
	if !ok || rendered == "" {
		return true
	}
	return ContainsMarker(rendered)
}

// ContainsMarker reports whether s still embeds a ${...} placeholder.
func ContainsMarker(s string) bool {
	if !strings.Contains(s, "${") {
		return false
	}
	return markerPattern.MatchString(s)
}
