package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/acksell/ddbq/dynamodb/schema"
	"github.com/acksell/ddbq/dynamodb/table"
)

func runDescribe(cfg Config, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)

	var (
		schemaPath = fs.String("schema", cfg.Schema, "path of the YAML table schema")
		tableName  = fs.String("table", "", "only describe this table")
		format     = fs.String("format", "text", "output format: text or yaml")
	)

	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), `ddb describe - Print the tables of a schema file

Usage:
  ddb describe [flags]

Flags:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	tables, err := loadTables(*schemaPath)
	if err != nil {
		return err
	}
	selected := sortedTables(tables)
	if *tableName != "" {
		t, ok := tables[*tableName]
		if !ok {
			return fmt.Errorf("schema has no table %q", *tableName)
		}
		selected = []*table.Table{t}
	}

	switch *format {
	case "text":
		return describeText(w, selected)
	case "yaml":
		data, err := schema.FromTables(selected...).Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
}

func loadTables(path string) (map[string]*table.Table, error) {
	if path == "" {
		return nil, errors.New("no schema file: pass --schema or set schema in ddb.yaml")
	}
	s, err := schema.Load(path)
	if err != nil {
		return nil, err
	}
	return s.Build()
}

func sortedTables(tables map[string]*table.Table) []*table.Table {
	out := make([]*table.Table, 0, len(tables))
	for _, t := range tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func describeText(w io.Writer, tables []*table.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "table %s\n", t.Name())
		fmt.Fprintln(tw, "  COLUMN\tTYPE\tROLE\t")
		for _, c := range t.Columns() {
			role := c.Role().String()
			if c.Name() == t.TimeToLiveKey() {
				role += " (ttl)"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t\n", c.Name(), c.Type(), role)
		}
		if idx := t.Indices(); len(idx) > 0 {
			fmt.Fprintln(tw, "  INDEX\tKIND\tKEYS\tPROJECTION")
			for _, ix := range idx {
				keys := ix.PartitionKey
				if ix.SortKey != "" {
					keys += ", " + ix.SortKey
				}
				proj := string(ix.Projection.Kind)
				if len(ix.Projection.NonKeyAttributes) > 0 {
					proj += " (" + strings.Join(ix.Projection.NonKeyAttributes, ", ") + ")"
				}
				fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", ix.Name, ix.Kind, keys, proj)
			}
		}
	}
	return tw.Flush()
}
