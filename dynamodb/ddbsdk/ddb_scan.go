package ddbsdk

import (
	"context"
	"fmt"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/acksell/ddbq/dynamodb/expr"
	"github.com/acksell/ddbq/dynamodb/table"
)

// Scanner pages through a whole table or index, filtering items with the
// predicates. Every predicate becomes part of the filter expression.
type Scanner struct {
	awsddb AWSDynamoClientV2
	log    zerolog.Logger

	table *table.Table
	preds []expr.Node

	compiled   *expr.Compiled
	lastCursor map[string]types.AttributeValue
	done       bool

	opts scanOptions
}

type scanOptions struct {
	eventuallyConsistent bool
	pageSize             int32
	index                []expr.Option
	projectionAttributes []string
	segment              int32
	totalSegments        int32
}

func NewScanner(ddb AWSDynamoClientV2, t *table.Table, preds ...expr.Node) *Scanner {
	return &Scanner{
		awsddb: ddb,
		log:    zerolog.Nop(),
		table:  t,
		preds:  preds,
		opts: scanOptions{
			pageSize: defaultPageSize,
		},
	}
}

func (s *Scanner) Compiled() (*expr.Compiled, error) {
	if s.compiled != nil {
		return s.compiled, nil
	}
	c, err := expr.Compile(s.table, s.preds, s.opts.index...)
	if err != nil {
		return nil, err
	}
	s.compiled = c
	return c, nil
}

func (s *Scanner) Next(ctx context.Context) (*QueryResult, error) {
	if s.done {
		return &QueryResult{IsDone: true}, nil
	}
	c, err := s.Compiled()
	if err != nil {
		return nil, err
	}
	proj, projNames, err := projection(s.opts.projectionAttributes)
	if err != nil {
		return nil, err
	}
	names, err := mergeNames(c.Names, projNames)
	if err != nil {
		return nil, err
	}

	input := &dynamodbv2.ScanInput{
		TableName:                 ptr(s.table.Name()),
		IndexName:                 c.IndexName(),
		FilterExpression:          c.ScanFilter(),
		ProjectionExpression:      proj,
		ExpressionAttributeValues: c.Values,
		ExpressionAttributeNames:  names,
		ConsistentRead:            ptr(consistentRead(s.table, c, s.opts.eventuallyConsistent)),
		Limit:                     ptr(s.opts.pageSize),
		ExclusiveStartKey:         s.lastCursor,
	}
	if s.opts.totalSegments > 0 {
		input.Segment = ptr(s.opts.segment)
		input.TotalSegments = ptr(s.opts.totalSegments)
	}

	s.log.Debug().Str("table", s.table.Name()).Bool("filtered", input.FilterExpression != nil).Msg("scan")

	res, err := s.awsddb.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.lastCursor = res.LastEvaluatedKey
	s.done = res.LastEvaluatedKey == nil
	return &QueryResult{
		Items:  res.Items,
		IsDone: s.done,
	}, nil
}

func (s *Scanner) ScanAll(ctx context.Context) (*QueryResult, error) {
	var allItems []Item
	for {
		res, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		allItems = append(allItems, res.Items...)
		if res.IsDone {
			break
		}
	}
	return &QueryResult{
		Items:  allItems,
		IsDone: true,
	}, nil
}

func (s *Scanner) WithEventuallyConsistentReads() *Scanner {
	s.opts.eventuallyConsistent = true
	return s
}

func (s *Scanner) WithPageSize(limit int) *Scanner {
	s.opts.pageSize = int32(limit)
	return s
}

func (s *Scanner) WithIndexName(name string) *Scanner {
	s.opts.index = []expr.Option{expr.WithIndexName(name)}
	s.compiled = nil
	return s
}

func (s *Scanner) WithProjection(attrs ...string) *Scanner {
	s.opts.projectionAttributes = attrs
	return s
}

// WithSegment restricts the scan to one segment of a parallel scan.
func (s *Scanner) WithSegment(segment, total int) *Scanner {
	s.opts.segment = int32(segment)
	s.opts.totalSegments = int32(total)
	return s
}
