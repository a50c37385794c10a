package schema

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/acksell/ddbq/dynamodb/table"
)

// ErrInvalid is wrapped by structural validation failures.
var ErrInvalid = errors.New("ddbq: invalid schema file")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes and validates a YAML schema. Unknown fields are rejected.
func Parse(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Schema
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses the schema file at path.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks the structural rules: required names, known kinds and
// index counts. Cross references are checked by Build.
func (s *Schema) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("field %s failed rule %q", strings.TrimPrefix(e.Namespace(), "Schema."), ruleOf(e)))
			}
			return fmt.Errorf("%w:\n- %s", ErrInvalid, strings.Join(msgs, "\n- "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	seen := make(map[string]bool, len(s.Tables))
	for _, t := range s.Tables {
		if seen[t.Name] {
			return fmt.Errorf("%w: table %q declared twice", ErrInvalid, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

func ruleOf(e validator.FieldError) string {
	if e.Param() == "" {
		return e.Tag()
	}
	return e.Tag() + "=" + e.Param()
}

// Build turns every table description into a table.Table keyed by name.
// Index key attributes that are not declared elsewhere become plain
// attributes of the table.
func (s *Schema) Build() (map[string]*table.Table, error) {
	out := make(map[string]*table.Table, len(s.Tables))
	var errs []error
	for _, t := range s.Tables {
		built, err := t.Build()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[t.Name] = built
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func (t Table) Build() (*table.Table, error) {
	b := table.NewBuilder(t.Name)
	kinds := make(map[string]string)
	var conflicts []error
	declare := func(name, kind string) bool {
		prev, ok := kinds[name]
		if ok && prev != kind {
			conflicts = append(conflicts, fmt.Errorf("attribute %q declared as %s and %s", name, prev, kind))
		}
		kinds[name] = kind
		return !ok
	}

	declare(t.PartitionKey.Name, t.PartitionKey.Kind)
	b.Partition(t.PartitionKey.Name, table.AttrType(t.PartitionKey.Kind))
	if t.SortKey != nil {
		declare(t.SortKey.Name, t.SortKey.Kind)
		b.Sort(t.SortKey.Name, table.AttrType(t.SortKey.Kind))
	}
	for _, a := range t.Attributes {
		if declare(a.Name, a.Kind) {
			b.Attr(a.Name, table.AttrType(a.Kind))
		}
	}
	indexKey := func(k *KeyDef) string {
		if k == nil {
			return ""
		}
		if declare(k.Name, k.Kind) {
			b.Attr(k.Name, table.AttrType(k.Kind))
		}
		return k.Name
	}
	for _, idx := range t.LocalIndices {
		sk := indexKey(&idx.SortKey)
		b.NamedLocalIndex(idx.Name, sk, idx.Projection.build())
	}
	for _, idx := range t.GSIs {
		pk := indexKey(&idx.PartitionKey)
		sk := indexKey(idx.SortKey)
		b.GlobalIndex(idx.Name, pk, sk, idx.Projection.build())
	}
	if t.TimeToLive != "" {
		if declare(t.TimeToLive, string(table.AttrN)) {
			b.Attr(t.TimeToLive, table.AttrN)
		}
		b.TTL(t.TimeToLive)
	}

	tbl, err := b.Build()
	if err != nil || len(conflicts) > 0 {
		return nil, fmt.Errorf("table %q: %w", t.Name, errors.Join(append(conflicts, err)...))
	}
	return tbl, nil
}

func (p *Projection) build() table.Projection {
	if p == nil {
		return table.ProjectAll()
	}
	switch table.ProjectionKind(p.Type) {
	case table.ProjectionKeysOnly:
		return table.ProjectKeysOnly()
	case table.ProjectionInclude:
		return table.ProjectInclude(p.NonKeyAttributes...)
	}
	return table.ProjectAll()
}

// FromTables describes built tables, for printing or writing back to a
// file.
func FromTables(tables ...*table.Table) *Schema {
	s := &Schema{}
	for _, t := range tables {
		st := Table{
			Name:         t.Name(),
			PartitionKey: keyDef(t.PartitionColumn()),
			TimeToLive:   t.TimeToLiveKey(),
		}
		if sk := t.SortColumn(); sk != nil {
			k := keyDef(sk)
			st.SortKey = &k
		}
		for _, c := range t.Columns() {
			if c.Role().IsKey() {
				continue
			}
			st.Attributes = append(st.Attributes, Attribute{Name: c.Name(), Kind: string(c.Type())})
		}
		for _, idx := range t.Indices() {
			proj := &Projection{Type: string(idx.Projection.Kind), NonKeyAttributes: idx.Projection.NonKeyAttributes}
			switch idx.Kind {
			case table.IndexLocal:
				st.LocalIndices = append(st.LocalIndices, LocalIndex{
					Name:       idx.Name,
					SortKey:    keyDef(t.Column(idx.SortKey)),
					Projection: proj,
				})
			case table.IndexGlobal:
				g := GSI{Name: idx.Name, PartitionKey: keyDef(t.Column(idx.PartitionKey)), Projection: proj}
				if idx.SortKey != "" {
					k := keyDef(t.Column(idx.SortKey))
					g.SortKey = &k
				}
				st.GSIs = append(st.GSIs, g)
			}
		}
		s.Tables = append(s.Tables, st)
	}
	return s
}

func keyDef(c *table.Column) KeyDef {
	return KeyDef{Name: c.Name(), Kind: string(c.Type())}
}

// Marshal encodes the schema as YAML.
func (s *Schema) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
