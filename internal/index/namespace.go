package index

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"github.com/xiang66/ccls/pkg/types"
)

// ScopeSeparator joins qualified name segments
const ScopeSeparator = "::"

// NamespaceHelper computes qualified names from lexical containers,
// memoizing each container's qualified prefix
type NamespaceHelper struct {
	prefixes map[string]string
}

// NewNamespaceHelper creates a helper with an empty memo
func NewNamespaceHelper() *NamespaceHelper {
	return &NamespaceHelper{prefixes: make(map[string]string)}
}

// QualifiedName returns the qualified form of name declared in container,
// with the offset and size of the unqualified name inside it
func (h *NamespaceHelper) QualifiedName(container *types.Container, name string) (string, int16, int16, error) {
	prefix := h.prefix(container)
	qualified := prefix + name
	offset, err := safecast.Conv[int16](len(prefix))
	if err != nil {
		return "", 0, 0, fmt.Errorf("qualifier of %q too long: %w", name, err)
	}
	size, err := safecast.Conv[int16](len(name))
	if err != nil {
		return "", 0, 0, fmt.Errorf("name %q too long: %w", name, err)
	}
	if int(offset)+int(size) > 1<<15-1 {
		return "", 0, 0, fmt.Errorf("qualified name of %q too long", name)
	}
	return qualified, offset, size, nil
}

// prefix returns the qualified name of container followed by the
// separator, or "" at the top level
func (h *NamespaceHelper) prefix(container *types.Container) string {
	if container == nil {
		return ""
	}
	if p, ok := h.prefixes[container.Handle]; ok {
		return p
	}

	// Collect containers up to the first memoized ancestor
	var chain []*types.Container
	base := ""
	for c := container; c != nil; c = c.Parent {
		if p, ok := h.prefixes[c.Handle]; ok {
			base = p
			break
		}
		chain = append(chain, c)
	}

	var b strings.Builder
	b.WriteString(base)
	for i := len(chain) - 1; i >= 0; i-- {
		c := chain[i]
		switch {
		case c.Kind == types.KindFunc:
			// Function locals are not qualified.
			b.Reset()
		case !c.Anonymous && c.Name != "":
			// Anonymous namespaces and records add no text but keep
			// their place in the chain.
			b.WriteString(c.Name)
			b.WriteString(ScopeSeparator)
		}
		h.prefixes[c.Handle] = b.String()
	}
	return h.prefixes[container.Handle]
}
