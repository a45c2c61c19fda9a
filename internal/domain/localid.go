package domain

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// LocalIDGenerator produces correlation ids for locally originated messages,
// formatted temp_<source>_<counter>_<random>. Ids are unique for the lifetime
// of the process; the counter keeps them ordered, the random fragment keeps
// them unique across restarts of the same view.
type LocalIDGenerator struct {
	source  string
	counter uint64
}

// NewLocalIDGenerator creates a generator for the given source tag
// (e.g. "support").
func NewLocalIDGenerator(source string) *LocalIDGenerator {
	return &LocalIDGenerator{source: source}
}

// Next returns a fresh local id.
func (g *LocalIDGenerator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	frag := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("temp_%s_%d_%s", g.source, n, frag)
}
