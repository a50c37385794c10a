package table

// IndexKind tells local and global secondary indices apart.
type IndexKind string

const (
	IndexLocal  IndexKind = "LOCAL"
	IndexGlobal IndexKind = "GLOBAL"
)

// DynamoDB limits on secondary indices per table.
const (
	MaxLocalIndices  = 5
	MaxGlobalIndices = 20
)

// Index describes a secondary index registered on a Table.
//
// A local index shares the table's partition key and adds a sort key:
//
//	table.NewBuilder("products").
//	    Partition("id", table.AttrS).
//	    Sort("sku", table.AttrS).
//	    Attr("price", table.AttrN).
//	    LocalIndex("price", table.ProjectAll())
//
// A global index declares its own partition and optional sort key:
//
//	GlobalIndex("by_category", "category", "price", table.ProjectKeysOnly())
type Index struct {
	Name         string
	Kind         IndexKind
	PartitionKey string
	SortKey      string // empty if the index has no sort key
	Projection   Projection
}

// IsKey reports whether the attribute name is one of the index's keys.
func (i Index) IsKey(name string) bool {
	return i.PartitionKey == name || (i.SortKey != "" && i.SortKey == name)
}

// HasSortKey reports whether the index declares a sort key.
func (i Index) HasSortKey() bool {
	return i.SortKey != ""
}
