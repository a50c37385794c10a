// Package schema reads table definitions from YAML files and turns them into
// table.Table values.
//
//	tables:
//	  - name: products
//	    partitionKey: {name: id, kind: S}
//	    sortKey: {name: sku, kind: S}
//	    timeToLive: expires_at
//	    attributes:
//	      - {name: price, kind: N}
//	    localIndices:
//	      - name: price
//	        sortKey: {name: price, kind: N}
//	    gsis:
//	      - name: by_category
//	        partitionKey: {name: category, kind: S}
//	        projection: {type: INCLUDE, nonKeyAttributes: [name]}
package schema

// Schema is the root type containing all table definitions.
type Schema struct {
	Tables []Table `yaml:"tables" json:"tables" validate:"required,min=1,dive"`
}

// Table describes a DynamoDB table structure.
type Table struct {
	Name         string       `yaml:"name" json:"name" validate:"required"`
	PartitionKey KeyDef       `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDef      `yaml:"sortKey,omitempty" json:"sortKey,omitempty" validate:"omitempty"`
	TimeToLive   string       `yaml:"timeToLive,omitempty" json:"timeToLive,omitempty"`
	Attributes   []Attribute  `yaml:"attributes,omitempty" json:"attributes,omitempty" validate:"dive"`
	LocalIndices []LocalIndex `yaml:"localIndices,omitempty" json:"localIndices,omitempty" validate:"max=5,dive"`
	GSIs         []GSI        `yaml:"gsis,omitempty" json:"gsis,omitempty" validate:"max=20,dive"`
}

// KeyDef describes a key attribute definition.
type KeyDef struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Kind string `yaml:"kind" json:"kind" validate:"required,oneof=S N B"`
}

// Attribute describes a non-key attribute.
type Attribute struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	Kind string `yaml:"kind" json:"kind" validate:"required,oneof=S N B BOOL NULL L M SS NS BS"`
}

// LocalIndex describes a Local Secondary Index. It shares the table's
// partition key.
type LocalIndex struct {
	Name       string      `yaml:"name" json:"name" validate:"required"`
	SortKey    KeyDef      `yaml:"sortKey" json:"sortKey"`
	Projection *Projection `yaml:"projection,omitempty" json:"projection,omitempty" validate:"omitempty"`
}

// GSI describes a Global Secondary Index.
type GSI struct {
	Name         string      `yaml:"name" json:"name" validate:"required"`
	PartitionKey KeyDef      `yaml:"partitionKey" json:"partitionKey"`
	SortKey      *KeyDef     `yaml:"sortKey,omitempty" json:"sortKey,omitempty" validate:"omitempty"`
	Projection   *Projection `yaml:"projection,omitempty" json:"projection,omitempty" validate:"omitempty"`
}

// Projection describes the attributes copied into an index. Type defaults
// to ALL.
type Projection struct {
	Type             string   `yaml:"type" json:"type" validate:"omitempty,oneof=ALL KEYS_ONLY INCLUDE"`
	NonKeyAttributes []string `yaml:"nonKeyAttributes,omitempty" json:"nonKeyAttributes,omitempty" validate:"required_if=Type INCLUDE,dive,required"`
}
