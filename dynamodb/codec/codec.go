// Package codec converts Go structs to and from DynamoDB items.
//
// The field plan of a struct type is built once, on first use, and cached
// for the life of the process. Reads and writes walk the plan with coders
// bound at build time and never inspect types or tags again.
//
//	type Product struct {
//	    ID    string          `dynamodbav:"id" ddb:"partition"`
//	    SKU   string          `dynamodbav:"sku" ddb:"sort"`
//	    Price decimal.Decimal `dynamodbav:"price"`
//	    Tags  []string        `dynamodbav:"tags,set"`
//	    Note  string          `dynamodbav:"-"`
//	}
//
//	c, err := codec.For[Product]()
//	item, err := c.Write(&p)
//	p, err = c.Read(item)
//
// Nil pointers, slices and maps are omitted on write. Missing attributes
// and NULL read back as the zero value. Times are written in UTC and read
// back in UTC, whatever location they had.
package codec

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acksell/ddbq/dynamodb/table"
)

// Record is the untyped codec of one struct type.
type Record struct {
	typ       reflect.Type
	fields    []Field
	partition string
	sort      string
	generated bool

	read  func(item map[string]types.AttributeValue, dst reflect.Value) error
	write func(src reflect.Value) (map[string]types.AttributeValue, error)
}

func (r *Record) Type() reflect.Type { return r.typ }

// Fields returns the field plan in declaration order.
func (r *Record) Fields() []Field { return slices.Clone(r.fields) }

// PartitionAttr is the attribute of the field tagged ddb:"partition", if any.
func (r *Record) PartitionAttr() string { return r.partition }

func (r *Record) SortAttr() string { return r.sort }

// Generated reports whether read and write were installed by Register.
func (r *Record) Generated() bool { return r.generated }

// Read decodes item into dst, which must be a pointer to the record type.
func (r *Record) Read(item map[string]types.AttributeValue, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Type() != r.typ {
		return fmt.Errorf("read target must be a non-nil *%s, got %T", r.typ, dst)
	}
	return r.read(item, v.Elem())
}

// Write encodes src, a value of or pointer to the record type.
func (r *Record) Write(src any) (map[string]types.AttributeValue, error) {
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Pointer && !v.IsNil() {
		v = v.Elem()
	}
	if !v.IsValid() || v.Type() != r.typ {
		return nil, fmt.Errorf("write source must be a %s, got %T", r.typ, src)
	}
	return r.write(v)
}

func (r *Record) readPlan(item map[string]types.AttributeValue, dst reflect.Value) error {
	for i := range r.fields {
		f := &r.fields[i]
		av, ok := item[f.Attr]
		if !ok || isNull(av) {
			continue
		}
		if err := f.coder.decode(av, dst.Field(f.Index)); err != nil {
			return withField(err, f.Attr)
		}
	}
	return nil
}

func (r *Record) writePlan(src reflect.Value) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(r.fields))
	for i := range r.fields {
		f := &r.fields[i]
		fv := src.Field(f.Index)
		if f.OmitEmpty && fv.IsZero() {
			continue
		}
		av, err := f.coder.encode(fv)
		if err != nil {
			return nil, fmt.Errorf("failed to encode field %s of %s: %w", f.Name, r.typ, err)
		}
		if av == nil {
			continue
		}
		item[f.Attr] = av
	}
	return item, nil
}

// Codec is the typed view of a Record.
type Codec[T any] struct {
	rec *Record
}

// For returns the codec of T, building it on first use. Every call for
// the same T returns the same *Codec.
func For[T any]() (*Codec[T], error) {
	t := reflect.TypeFor[T]()
	if c, ok := codecs.Load(t); ok {
		return c.(*Codec[T]), nil
	}
	rec, err := Lookup(t)
	if err != nil {
		return nil, err
	}
	c, _ := codecs.LoadOrStore(t, &Codec[T]{rec: rec})
	return c.(*Codec[T]), nil
}

// MustFor is like For but panics on error.
func MustFor[T any]() *Codec[T] {
	c, err := For[T]()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Codec[T]) Record() *Record { return c.rec }

func (c *Codec[T]) Read(item map[string]types.AttributeValue) (T, error) {
	var v T
	err := c.rec.read(item, reflect.ValueOf(&v).Elem())
	return v, err
}

func (c *Codec[T]) Write(v *T) (map[string]types.AttributeValue, error) {
	if v == nil {
		return nil, errors.New("cannot write a nil record")
	}
	return c.rec.write(reflect.ValueOf(v).Elem())
}

// Key returns the primary key of v in t.
func (c *Codec[T]) Key(v *T, t *table.Table) (table.Key, error) {
	item, err := c.Write(v)
	if err != nil {
		return table.Key{}, err
	}
	return t.KeyFromItem(item)
}
