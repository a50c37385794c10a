// Package example holds table definitions shared by tests and docs.
package example

import "github.com/acksell/ddbq/dynamodb/table"

// Products is a catalog table keyed by product id and sku, with a local
// index on price and a global index by category.
var Products = table.NewBuilder("products").
	Partition("id", table.AttrS).
	Sort("sku", table.AttrS).
	Attr("price", table.AttrN).
	Attr("category", table.AttrS).
	Attr("department", table.AttrS).
	Attr("name", table.AttrS).
	Attr("in_stock", table.AttrBOOL).
	Attr("tags", table.AttrSS).
	Attr("expires_at", table.AttrN).
	TTL("expires_at").
	LocalIndex("price", table.ProjectAll()).
	GlobalIndex("by_category", "category", "price", table.ProjectInclude("name", "in_stock")).
	MustBuild()

// Sessions only has a partition key.
var Sessions = table.NewBuilder("sessions").
	Partition("session_id", table.AttrS).
	Attr("user", table.AttrS).
	Attr("started_at", table.AttrS).
	MustBuild()
