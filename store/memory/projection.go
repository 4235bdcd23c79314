package memory

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/docstore"
)

// projection is a compiled field selection.
type projection struct {
	include   map[string]bool
	exclude   map[string]bool
	keepID    bool
	inclusive bool
}

// compileProjection interprets p. With at least one truthy flag it is an
// inclusion projection: only flagged fields survive, plus IDField unless it
// is explicitly falsy. Otherwise the falsy fields are removed and everything
// else is kept. Excluding any field other than IDField from an inclusion
// projection is rejected. A nil or empty projection keeps the whole document.
func compileProjection(p docstore.Projection) (*projection, error) {
	if len(p) == 0 {
		return nil, nil
	}
	raw, err := bson.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: encode projection: %w", err)
	}
	elems, err := bson.Raw(raw).Elements()
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: decode projection: %w", err)
	}

	pr := &projection{
		include: make(map[string]bool),
		exclude: make(map[string]bool),
		keepID:  true,
	}
	for _, e := range elems {
		key := e.Key()
		if truthy(e.Value()) {
			pr.include[key] = true
			pr.inclusive = true
			continue
		}
		if key == docstore.IDField {
			pr.keepID = false
			continue
		}
		pr.exclude[key] = true
	}
	if pr.inclusive && len(pr.exclude) > 0 {
		return nil, fmt.Errorf("%w: projection mixes inclusion and exclusion", docstore.ErrUnsupportedOperator)
	}
	return pr, nil
}

// apply returns doc reduced to the selected fields, preserving source order.
// Unselected fields are dropped entirely.
func (p *projection) apply(doc bson.Raw) (bson.Raw, error) {
	if p == nil {
		return doc, nil
	}
	elems, err := doc.Elements()
	if err != nil {
		return nil, fmt.Errorf("docstore/memory: decode document: %w", err)
	}

	out := make(bson.D, 0, len(elems))
	for _, e := range elems {
		if p.keeps(e.Key()) {
			out = append(out, bson.E{Key: e.Key(), Value: e.Value()})
		}
	}
	return marshal(out)
}

func (p *projection) keeps(key string) bool {
	if key == docstore.IDField {
		return p.keepID
	}
	if p.inclusive {
		return p.include[key]
	}
	return !p.exclude[key]
}
