package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/acksell/ddbq/dynamodb/ddbsdk"
	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

// whereFlags collects repeated --where clauses.
type whereFlags []string

func (w *whereFlags) String() string { return strings.Join(*w, " AND ") }

func (w *whereFlags) Set(v string) error {
	*w = append(*w, v)
	return nil
}

// newClient builds the DynamoDB client. Replaced in tests.
var newClient = func(ctx context.Context, region, endpoint string) (ddbsdk.AWSDynamoClientV2, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func runQuery(cfg Config, log zerolog.Logger, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)

	var where whereFlags
	var (
		schemaPath = fs.String("schema", cfg.Schema, "path of the YAML table schema")
		tableName  = fs.String("table", "", "table to query (required)")
		indexName  = fs.String("index", "", "secondary index to query")
		scan       = fs.Bool("scan", false, "scan instead of query, every predicate becomes a filter")
		limit      = fs.Int("limit", 0, "stop after this many items, 0 reads all pages")
		pageSize   = fs.Int("page-size", 100, "items per request")
		descending = fs.Bool("desc", false, "read in descending sort key order")
		dryRun     = fs.Bool("dry-run", false, "print the compiled expressions without calling DynamoDB")
		region     = fs.String("region", cfg.Region, "AWS region")
		endpoint   = fs.String("endpoint", cfg.Endpoint, "DynamoDB endpoint, for DynamoDB Local")
	)
	fs.Var(&where, "where", "predicate, repeatable: name=v name!=v name<v name<=v name>v name>=v name^=prefix name~=v name?")

	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), `ddb query - Run predicates against a table or index

Usage:
  ddb query --table T [--index I] --where clause... [flags]

A query pinning the full primary key with = is sent as a GetItem.
Items are printed as JSON, one per line.

Flags:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableName == "" {
		return errors.New("--table is required")
	}

	tables, err := loadTables(*schemaPath)
	if err != nil {
		return err
	}
	t, ok := tables[*tableName]
	if !ok {
		return fmt.Errorf("schema has no table %q", *tableName)
	}
	preds, err := parseWhere(t, where)
	if err != nil {
		return err
	}

	var opts []expr.Option
	if *indexName != "" {
		opts = append(opts, expr.WithIndexName(*indexName))
	}
	if *dryRun {
		c, err := expr.Compile(t, preds, opts...)
		if err != nil {
			return err
		}
		return printCompiled(w, c, *scan)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	awsddb, err := newClient(ctx, *region, *endpoint)
	if err != nil {
		return err
	}
	client := ddbsdk.New(awsddb, ddbsdk.WithLogger(log))

	var next func(context.Context) (*ddbsdk.QueryResult, error)
	if *scan {
		s := client.NewScan(t, preds...).WithPageSize(*pageSize)
		if *indexName != "" {
			s.WithIndexName(*indexName)
		}
		next = s.Next
	} else {
		q := client.NewQuery(t, preds...).WithPageSize(*pageSize)
		if *indexName != "" {
			q.WithIndexName(*indexName)
		}
		if *descending {
			q.WithDescending()
		}
		next = q.Next
	}

	enc := json.NewEncoder(w)
	printed := 0
	for {
		res, err := next(ctx)
		if err != nil {
			return err
		}
		for _, item := range res.Items {
			var v map[string]any
			if err := attributevalue.UnmarshalMap(item, &v); err != nil {
				return fmt.Errorf("failed to decode item: %w", err)
			}
			if err := enc.Encode(v); err != nil {
				return err
			}
			printed++
			if printed == *limit {
				return nil
			}
		}
		if res.IsDone {
			log.Debug().Int("items", printed).Msg("done")
			return nil
		}
	}
}

// whereOps is ordered so longer operators match first.
var whereOps = []string{">=", "<=", "!=", "^=", "~=", "=", ">", "<"}

// parseWhere turns --where clauses into predicates. Values are converted to
// the column's type.
func parseWhere(t *table.Table, clauses []string) ([]expr.Node, error) {
	preds := make([]expr.Node, 0, len(clauses))
	for _, clause := range clauses {
		if name, ok := strings.CutSuffix(clause, "?"); ok && !strings.ContainsAny(name, "=<>!^~") {
			c, err := column(t, name)
			if err != nil {
				return nil, err
			}
			preds = append(preds, expr.Exists(c))
			continue
		}

		op, name, raw := splitClause(clause)
		if op == "" {
			return nil, fmt.Errorf("invalid clause %q: no operator", clause)
		}
		c, err := column(t, name)
		if err != nil {
			return nil, err
		}
		typ := c.Type()
		if op == "~=" {
			typ = elementType(typ)
		}
		v, err := parseValue(typ, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid clause %q: %w", clause, err)
		}

		switch op {
		case "=":
			preds = append(preds, expr.Equal(c, v))
		case "!=":
			preds = append(preds, expr.NotEqual(c, v))
		case "<":
			preds = append(preds, expr.Less(c, v))
		case "<=":
			preds = append(preds, expr.LessOrEqual(c, v))
		case ">":
			preds = append(preds, expr.Greater(c, v))
		case ">=":
			preds = append(preds, expr.GreaterOrEqual(c, v))
		case "^=":
			preds = append(preds, expr.Prefix(c, v))
		case "~=":
			preds = append(preds, expr.Has(c, v))
		}
	}
	return preds, nil
}

func splitClause(clause string) (op, name, value string) {
	best := -1
	for _, candidate := range whereOps {
		i := strings.Index(clause, candidate)
		if i <= 0 {
			continue
		}
		if best == -1 || i < best || (i == best && len(candidate) > len(op)) {
			best, op = i, candidate
		}
	}
	if best == -1 {
		return "", "", ""
	}
	return op, strings.TrimSpace(clause[:best]), strings.TrimSpace(clause[best+len(op):])
}

func column(t *table.Table, name string) (*table.Column, error) {
	c := t.Column(name)
	if c == nil {
		return nil, fmt.Errorf("table %q has no column %q", t.Name(), name)
	}
	return c, nil
}

func elementType(t table.AttrType) table.AttrType {
	switch t {
	case table.AttrSS:
		return table.AttrS
	case table.AttrNS:
		return table.AttrN
	case table.AttrBS:
		return table.AttrB
	}
	return table.AttrS
}

func parseValue(t table.AttrType, raw string) (any, error) {
	switch t {
	case table.AttrN:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return &types.AttributeValueMemberN{Value: d.String()}, nil
	case table.AttrB:
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not base64: %w", raw, err)
		}
		return b, nil
	case table.AttrBOOL:
		return strconv.ParseBool(raw)
	}
	return raw, nil
}

func printCompiled(w io.Writer, c *expr.Compiled, scan bool) error {
	line := func(label string, v *string) {
		if v != nil {
			fmt.Fprintf(w, "%s: %s\n", label, *v)
		}
	}
	if c.Index != nil {
		fmt.Fprintf(w, "index: %s\n", c.Index.Name())
	}
	switch {
	case scan:
		fmt.Fprintln(w, "operation: Scan")
		line("filter", c.ScanFilter())
	case c.IsSimpleGet():
		fmt.Fprintln(w, "operation: GetItem")
		fmt.Fprintf(w, "key: %s\n", c.SimpleGetKey)
	default:
		fmt.Fprintln(w, "operation: Query")
		line("key condition", c.KeyCondition)
		line("filter", c.FilterCondition)
	}
	for _, alias := range sortedKeys(c.Names) {
		fmt.Fprintf(w, "name %s = %s\n", alias, c.Names[alias])
	}
	for _, token := range sortedKeys(c.Values) {
		var v any
		if err := attributevalue.Unmarshal(c.Values[token], &v); err != nil {
			return err
		}
		fmt.Fprintf(w, "value %s = %v\n", token, v)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
