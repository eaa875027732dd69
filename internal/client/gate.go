package client

import (
	"fmt"

	"github.com/thammuio/flowgate/pkg/flow"
)

// safetyGate rejects mutating calls before any I/O happens. Clients are
// read-only until writes are enabled, and an optional allowlist restricts
// which run-state verbs may be issued.
type safetyGate struct {
	allowWrites  bool
	allowedVerbs map[flow.Verb]struct{}
}

func newSafetyGate(allowWrites bool, allowedVerbs []string) *safetyGate {
	gate := &safetyGate{allowWrites: allowWrites}

	if len(allowedVerbs) > 0 {
		gate.allowedVerbs = make(map[flow.Verb]struct{}, len(allowedVerbs))
		for _, verb := range allowedVerbs {
			gate.allowedVerbs[flow.Verb(verb)] = struct{}{}
		}
	}

	return gate
}

// checkWrite rejects the call when the client is read-only.
func (g *safetyGate) checkWrite() error {
	if !g.allowWrites {
		return flow.ErrReadOnlyMode
	}

	return nil
}

// checkVerb rejects the call when the client is read-only, the verb is
// unknown, or the verb is excluded by the allowlist.
func (g *safetyGate) checkVerb(verb flow.Verb) error {
	err := g.checkWrite()
	if err != nil {
		return err
	}

	_, err = flow.StateForVerb(verb)
	if err != nil {
		return fmt.Errorf("%w: %q", err, verb)
	}

	if g.allowedVerbs != nil {
		_, ok := g.allowedVerbs[verb]
		if !ok {
			return fmt.Errorf("%w: %q", flow.ErrVerbNotAllowed, verb)
		}
	}

	return nil
}
