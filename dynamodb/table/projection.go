package table

import "slices"

// ProjectionKind is the set of attributes copied into a secondary index.
type ProjectionKind string

const (
	ProjectionAll      ProjectionKind = "ALL"
	ProjectionKeysOnly ProjectionKind = "KEYS_ONLY"
	// In addition to the attributes described in KEYS_ONLY, the secondary index
	// will include the non-key attributes listed in NonKeyAttributes.
	ProjectionInclude ProjectionKind = "INCLUDE"
)

type Projection struct {
	Kind             ProjectionKind
	NonKeyAttributes []string
}

func ProjectAll() Projection {
	return Projection{Kind: ProjectionAll}
}

func ProjectKeysOnly() Projection {
	return Projection{Kind: ProjectionKeysOnly}
}

// ProjectInclude projects the keys plus the listed attributes.
func ProjectInclude(attrs ...string) Projection {
	return Projection{Kind: ProjectionInclude, NonKeyAttributes: slices.Clone(attrs)}
}

// Includes reports whether the attribute is available when reading the index.
// Key attributes of the index and the table are always projected and must be
// checked by the caller.
func (p Projection) Includes(attr string) bool {
	switch p.Kind {
	case ProjectionAll, "":
		return true
	case ProjectionInclude:
		return slices.Contains(p.NonKeyAttributes, attr)
	default:
		return false
	}
}
