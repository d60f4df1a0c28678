package shadercache

import (
	"log/slog"

	"github.com/gogpu/shadercache/hashkey"
)

// stageCache deduplicates compiled stages on two levels.
//
// byKey maps a configuration key hash to the stage it produced, or to nil
// when the generator said no custom stage is needed; a remembered key skips
// source generation. bySource maps a generated source hash to the one stage
// compiled from it, so distinct keys that generate identical text share a
// stage. Both levels are append-only; entries are released only by release.
type stageCache struct {
	driver     Driver
	gen        Generator
	negotiator *bindingNegotiator
	separable  bool
	log        *slog.Logger

	byKey    [numStageKinds]map[uint64]Stage
	bySource [numStageKinds]map[uint64]Stage

	keyHits    uint64
	sourceHits uint64
	compiles   uint64
}

func newStageCache(d Driver, gen Generator, n *bindingNegotiator, separable bool, log *slog.Logger) *stageCache {
	c := &stageCache{
		driver:     d,
		gen:        gen,
		negotiator: n,
		separable:  separable,
		log:        log,
	}
	for k := range c.byKey {
		c.byKey[k] = make(map[uint64]Stage)
		c.bySource[k] = make(map[uint64]Stage)
	}
	return c
}

// resolve returns the stage for key, compiling at most once per distinct
// generated source. A nil stage with a nil error means the configuration
// needs no custom vertex stage.
//
// Failures are not remembered: the next call with the same key generates
// and compiles again.
func (c *stageCache) resolve(kind StageKind, key hashkey.Key) (Stage, error) {
	keyHash := hashkey.Of(key)
	if s, ok := c.byKey[kind][keyHash]; ok {
		c.keyHits++
		return s, nil
	}

	source, ok := c.gen.Generate(kind, key, c.separable)
	if !ok {
		if kind != StageVertex {
			return nil, ErrNoSource
		}
		c.byKey[kind][keyHash] = nil
		return nil, nil
	}

	sourceHash := hashkey.String(source)
	if s, ok := c.bySource[kind][sourceHash]; ok {
		c.sourceHits++
		c.byKey[kind][keyHash] = s
		return s, nil
	}

	s, err := buildStage(c.driver, c.negotiator, c.separable, kind, source, sourceHash)
	if err != nil {
		return nil, err
	}
	c.compiles++
	c.log.Debug("shadercache: stage compiled",
		"kind", kind, "key", keyHash, "source", sourceHash, "handle", s.Handle())

	c.bySource[kind][sourceHash] = s
	c.byKey[kind][keyHash] = s
	return s, nil
}

// stages returns the number of distinct compiled stages.
func (c *stageCache) stages() int {
	n := 0
	for k := range c.bySource {
		n += len(c.bySource[k])
	}
	return n
}

// release deletes every compiled stage and empties the tables.
func (c *stageCache) release() {
	for k := range c.bySource {
		for _, s := range c.bySource[k] {
			s.release(c.driver)
		}
		c.bySource[k] = make(map[uint64]Stage)
		c.byKey[k] = make(map[uint64]Stage)
	}
}
