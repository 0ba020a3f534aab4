// =============================================================================
// Invoice Rollup - Name Resolver
// =============================================================================
//
// Resolver asks an external oracle (a chat model behind an HTTP API) for the
// canonical spelling of a cleaned name, retrying transient failures and
// sanitizing whatever comes back.
//
// Reconciler is the full lookup chain for one field value:
//
//	Clean -> mapping store hit? -> similarity hints -> Resolver -> store append
//
// Failures never abort extraction: the cleaned value is returned instead and
// one event is written to the unmatched log.
//
// =============================================================================

package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ginjaninja78/invoice-rollup/internal/eventlog"
	"github.com/ginjaninja78/invoice-rollup/internal/mapping"
	"github.com/ginjaninja78/invoice-rollup/internal/retry"
	"github.com/ginjaninja78/invoice-rollup/internal/similarity"
	"github.com/ginjaninja78/invoice-rollup/internal/textnorm"
)

var (
	// ErrResolution marks every failure to obtain a canonical name.
	ErrResolution = errors.New("name resolution failed")

	// ErrEmptyResponse is returned when the oracle output sanitizes to nothing.
	ErrEmptyResponse = fmt.Errorf("%w: empty response after sanitization", ErrResolution)

	// ErrNoOracle is returned when no oracle is configured.
	ErrNoOracle = fmt.Errorf("%w: no oracle configured", ErrResolution)
)

// Oracle turns a prompt into free text.
type Oracle interface {
	ResolveText(ctx context.Context, prompt string) (string, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, prompt string) (string, error)

// ResolveText implements Oracle.
func (f OracleFunc) ResolveText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver calls the oracle under a retry policy.
type Resolver struct {
	oracle Oracle
	policy retry.Policy
}

// New returns a resolver. A nil oracle makes every call fail with ErrNoOracle.
func New(oracle Oracle, policy retry.Policy) *Resolver {
	return &Resolver{oracle: oracle, policy: policy}
}

// Resolve returns the sanitized canonical name for cleaned. Any error wraps
// ErrResolution.
func (r *Resolver) Resolve(ctx context.Context, fieldName, cleaned string, candidates []string) (string, error) {
	if r.oracle == nil {
		return "", ErrNoOracle
	}

	prompt := BuildPrompt(fieldName, cleaned, candidates)
	raw, err := retry.Do(ctx, r.policy, func(ctx context.Context) (string, error) {
		return r.oracle.ResolveText(ctx, prompt)
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrResolution, err)
	}

	canonical := textnorm.Finalize(raw, "")
	if canonical == "" {
		return "", ErrEmptyResponse
	}
	return canonical, nil
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler maps raw field values to canonical names through the mapping
// store, falling back to the resolver for unknown keys. It is not safe for
// concurrent use; one ingestion run owns it.
type Reconciler struct {
	store    *mapping.Store
	resolver *Resolver
	events   eventlog.Sink
	logger   *slog.Logger

	// keys that already failed in this run; not persisted
	failed map[string]struct{}
}

// NewReconciler wires the lookup chain.
func NewReconciler(store *mapping.Store, resolver *Resolver, events eventlog.Sink, logger *slog.Logger) *Reconciler {
	if events == nil {
		events = eventlog.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    store,
		resolver: resolver,
		events:   events,
		logger:   logger,
		failed:   make(map[string]struct{}),
	}
}

// Normalize returns the canonical name for raw. An empty cleaned value
// returns "" without consulting the oracle.
func (r *Reconciler) Normalize(ctx context.Context, fieldName, raw string) string {
	cleaned := textnorm.Clean(raw)
	if cleaned == "" {
		return ""
	}
	if _, ok := r.failed[cleaned]; ok {
		return cleaned
	}

	canonical, ok, err := r.store.Get(cleaned)
	if err != nil {
		r.fail(fieldName, cleaned, err)
		return cleaned
	}
	if ok {
		return canonical
	}

	keys, _ := r.store.Keys()
	hints := similarity.Hints(cleaned, keys)
	names := make([]string, 0, len(hints))
	for _, h := range hints {
		if name, ok, _ := r.store.Get(h.Key); ok {
			names = append(names, name)
		}
	}

	canonical, err = r.resolver.Resolve(ctx, fieldName, cleaned, names)
	if err != nil {
		r.fail(fieldName, cleaned, err)
		return cleaned
	}

	if err := r.store.Append(cleaned, canonical, fieldName); err != nil {
		r.logger.Error("failed to persist mapping", "cleaned", cleaned, "canonical", canonical, "error", err)
	}
	r.logger.Debug("resolved name", "field", fieldName, "cleaned", cleaned, "canonical", canonical, "hints", len(names))
	return canonical
}

func (r *Reconciler) fail(fieldName, cleaned string, err error) {
	r.failed[cleaned] = struct{}{}
	r.events.Record(eventlog.CategoryResolution, fmt.Sprintf("%s: %s", fieldName, cleaned), err.Error())
}
