package codec

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acksell/ddbq/dynamodb/table/example"
)

type address struct {
	Street string `dynamodbav:"street"`
	City   string `dynamodbav:"city"`
}

type product struct {
	ID         string            `dynamodbav:"id" ddb:"partition"`
	SKU        string            `dynamodbav:"sku" ddb:"sort"`
	Name       string            `json:"name,omitempty"`
	Price      decimal.Decimal   `dynamodbav:"price"`
	Discount   *decimal.Decimal  `dynamodbav:"discount"`
	Stock      int32             `dynamodbav:"stock"`
	Weight     float64           `dynamodbav:"weight"`
	Ratio      float32           `dynamodbav:"ratio"`
	Count      uint16            `dynamodbav:"count"`
	InStock    bool              `dynamodbav:"in_stock"`
	Tags       []string          `dynamodbav:"tags,set"`
	Sizes      []int             `dynamodbav:"sizes,set"`
	Colors     []string          `dynamodbav:"colors"`
	Ref        uuid.UUID         `dynamodbav:"ref"`
	Owner      *uuid.UUID        `dynamodbav:"owner"`
	Created    time.Time         `dynamodbav:"created"`
	Updated    *time.Time        `dynamodbav:"updated"`
	Blob       []byte            `dynamodbav:"blob"`
	Home       address           `dynamodbav:"home"`
	Warehouses []address         `dynamodbav:"warehouses"`
	Billing    *address          `dynamodbav:"billing"`
	Attrs      map[string]string `dynamodbav:"attrs"`
	Levels     map[string]*int   `dynamodbav:"levels"`
	Skip       string            `dynamodbav:"-"`
	hidden     string
}

func fullProduct() product {
	discount := decimal.RequireFromString("2.5")
	owner := uuid.MustParse("7d444840-9dc0-11d1-b245-5ffdce74fad2")
	updated := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	level := 3
	return product{
		ID:         "p1",
		SKU:        "sku-1",
		Name:       "boot",
		Price:      decimal.RequireFromString("19.99"),
		Discount:   &discount,
		Stock:      -4,
		Weight:     1.25,
		Ratio:      0.1,
		Count:      7,
		InStock:    true,
		Tags:       []string{"red", "leather"},
		Sizes:      []int{40, 41},
		Colors:     []string{"red", "red"},
		Ref:        uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Owner:      &owner,
		Created:    time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
		Updated:    &updated,
		Blob:       []byte{1, 2, 3},
		Home:       address{Street: "Main 1", City: "Oslo"},
		Warehouses: []address{{City: "Bergen"}, {City: "Trondheim"}},
		Billing:    &address{Street: "Side 2", City: "Oslo"},
		Attrs:      map[string]string{"material": "leather"},
		Levels:     map[string]*int{"a": &level, "b": nil},
	}
}

func TestRoundTrip(t *testing.T) {
	c, err := For[product]()
	require.NoError(t, err)

	p := fullProduct()
	p.Skip = "not stored"
	p.hidden = "not stored"
	item, err := c.Write(&p)
	require.NoError(t, err)

	require.Equal(t, &types.AttributeValueMemberS{Value: "p1"}, item["id"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "19.99"}, item["price"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "0.1"}, item["ratio"])
	require.Equal(t, &types.AttributeValueMemberN{Value: "-4"}, item["stock"])
	require.Equal(t, &types.AttributeValueMemberSS{Value: []string{"red", "leather"}}, item["tags"])
	require.Equal(t, &types.AttributeValueMemberNS{Value: []string{"40", "41"}}, item["sizes"])
	require.IsType(t, &types.AttributeValueMemberL{}, item["colors"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "2024-01-02T03:04:05.000000006Z"}, item["created"])
	require.IsType(t, &types.AttributeValueMemberM{}, item["home"])
	require.IsType(t, &types.AttributeValueMemberB{}, item["blob"])
	require.Equal(t, &types.AttributeValueMemberNULL{Value: true}, item["levels"].(*types.AttributeValueMemberM).Value["b"])
	require.NotContains(t, item, "Skip")
	require.NotContains(t, item, "hidden")

	got, err := c.Read(item)
	require.NoError(t, err)

	require.True(t, p.Price.Equal(got.Price))
	require.True(t, p.Discount.Equal(*got.Discount))
	got.Price, got.Discount = p.Price, p.Discount
	p.Skip, p.hidden = "", ""
	require.Equal(t, p, got)
}

func TestWriteOmitsAbsentValues(t *testing.T) {
	c := MustFor[product]()
	item, err := c.Write(&product{ID: "p1", SKU: "s1"})
	require.NoError(t, err)

	for _, attr := range []string{"discount", "owner", "updated", "billing", "tags", "sizes", "colors", "blob", "warehouses", "attrs", "levels", "name"} {
		assert.NotContains(t, item, attr)
	}
	// zero scalars are kept
	require.Equal(t, &types.AttributeValueMemberN{Value: "0"}, item["stock"])
	require.Equal(t, &types.AttributeValueMemberBOOL{Value: false}, item["in_stock"])
}

func TestReadMissingAndNull(t *testing.T) {
	c := MustFor[product]()
	got, err := c.Read(map[string]types.AttributeValue{
		"id":      &types.AttributeValueMemberS{Value: "p1"},
		"stock":   &types.AttributeValueMemberNULL{Value: true},
		"owner":   &types.AttributeValueMemberNULL{Value: true},
		"billing": &types.AttributeValueMemberNULL{Value: true},
		"colors": &types.AttributeValueMemberL{Value: []types.AttributeValue{
			&types.AttributeValueMemberNULL{Value: true},
			&types.AttributeValueMemberS{Value: "blue"},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, "p1", got.ID)
	require.Zero(t, got.Stock)
	require.Nil(t, got.Owner)
	require.Nil(t, got.Billing)
	require.True(t, got.Price.IsZero())
	require.Equal(t, []string{"", "blue"}, got.Colors)
}

func TestReadErrors(t *testing.T) {
	c := MustFor[product]()
	tests := []struct {
		name     string
		item     map[string]types.AttributeValue
		field    string
		expected string
		actual   string
		sentinel error
	}{
		{
			name:     "scalar is a map",
			item:     map[string]types.AttributeValue{"stock": &types.AttributeValueMemberM{}},
			field:    "stock",
			expected: "N",
			actual:   "M",
			sentinel: ErrTagMismatch,
		},
		{
			name: "nested field",
			item: map[string]types.AttributeValue{"home": &types.AttributeValueMemberM{Value: map[string]types.AttributeValue{
				"city": &types.AttributeValueMemberN{Value: "1"},
			}}},
			field:    "home.city",
			expected: "S",
			actual:   "N",
			sentinel: ErrTagMismatch,
		},
		{
			name: "list element",
			item: map[string]types.AttributeValue{"warehouses": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberM{},
				&types.AttributeValueMemberS{Value: "x"},
			}}},
			field:    "warehouses[1]",
			expected: "M",
			actual:   "S",
			sentinel: ErrTagMismatch,
		},
		{
			name:     "set of the wrong kind",
			item:     map[string]types.AttributeValue{"tags": &types.AttributeValueMemberNS{Value: []string{"1"}}},
			field:    "tags",
			expected: "SS",
			actual:   "NS",
			sentinel: ErrTagMismatch,
		},
		{
			name:     "number out of range",
			item:     map[string]types.AttributeValue{"count": &types.AttributeValueMemberN{Value: "70000"}},
			field:    "count",
			expected: "N within range of uint16",
			actual:   "70000",
			sentinel: ErrInvalidValue,
		},
		{
			name:     "bad uuid",
			item:     map[string]types.AttributeValue{"ref": &types.AttributeValueMemberS{Value: "nope"}},
			field:    "ref",
			expected: "S holding a UUID",
			actual:   "nope",
			sentinel: ErrInvalidValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Read(tt.item)
			require.ErrorIs(t, err, tt.sentinel)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "expected DecodeError, got %T", err)
			require.Equal(t, tt.field, de.Field)
			require.Equal(t, tt.expected, de.Expected)
			require.Equal(t, tt.actual, de.Actual)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	type withChan struct{ Ch chan int }
	type withAny struct{ V any }
	type withNestedList struct{ Grid [][]string }
	type withIntKeys struct{ M map[int]string }
	type withComplex struct{ C complex128 }
	type withBadNested struct{ Inner struct{ F func() } }

	tests := []struct {
		name  string
		typ   reflect.Type
		field string
	}{
		{"channel", reflect.TypeFor[withChan](), "Ch"},
		{"interface", reflect.TypeFor[withAny](), "V"},
		{"nested list", reflect.TypeFor[withNestedList](), "Grid"},
		{"map with int keys", reflect.TypeFor[withIntKeys](), "M"},
		{"complex number", reflect.TypeFor[withComplex](), "C"},
		{"unsupported nested field", reflect.TypeFor[withBadNested](), "F"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 3 {
				rec, err := Lookup(tt.typ)
				require.Nil(t, rec)
				require.ErrorIs(t, err, ErrUnsupportedField)
				var ce *CompileError
				require.True(t, errors.As(err, &ce))
				require.Equal(t, tt.field, ce.Field)
			}
		})
	}

	t.Run("not a struct", func(t *testing.T) {
		_, err := Lookup(reflect.TypeFor[int]())
		require.ErrorIs(t, err, ErrNotRecord)
		_, err = For[*product]()
		require.ErrorIs(t, err, ErrNotRecord)
	})
	t.Run("cyclic", func(t *testing.T) {
		type tree struct {
			Children []tree
		}
		_, err := For[tree]()
		require.ErrorIs(t, err, ErrCyclicType)
	})
	t.Run("bool key", func(t *testing.T) {
		type boolKey struct {
			B bool `ddb:"partition"`
		}
		_, err := For[boolKey]()
		require.ErrorIs(t, err, ErrInvalidKeyField)
	})
	t.Run("unknown role", func(t *testing.T) {
		type badRole struct {
			ID string `ddb:"primary"`
		}
		_, err := For[badRole]()
		require.ErrorIs(t, err, ErrInvalidKeyField)
	})
	t.Run("duplicate attribute", func(t *testing.T) {
		type dup struct {
			A string `dynamodbav:"x"`
			B string `json:"x"`
		}
		_, err := For[dup]()
		require.ErrorIs(t, err, ErrDuplicateAttribute)
	})
}

func TestRoleAlias(t *testing.T) {
	type aliased struct {
		ID  string `dynamodbav:"id" ddb:"partition=pk"`
		Ver int    `ddb:"sort=sk"`
	}
	c := MustFor[aliased]()
	require.Equal(t, "pk", c.Record().PartitionAttr())
	require.Equal(t, "sk", c.Record().SortAttr())
	item, err := c.Write(&aliased{ID: "a", Ver: 2})
	require.NoError(t, err)
	require.Equal(t, map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: "a"},
		"sk": &types.AttributeValueMemberN{Value: "2"},
	}, item)
}

func TestKey(t *testing.T) {
	p := fullProduct()
	k, err := MustFor[product]().Key(&p, example.Products)
	require.NoError(t, err)
	require.Equal(t, map[string]types.AttributeValue{
		"id":  &types.AttributeValueMemberS{Value: "p1"},
		"sku": &types.AttributeValueMemberS{Value: "sku-1"},
	}, k.DDB())
}

func TestDuplicateSetElements(t *testing.T) {
	p := product{ID: "p", SKU: "s", Tags: []string{"a", "a"}}
	_, err := MustFor[product]().Write(&p)
	require.ErrorIs(t, err, ErrInvalidValue)
}

type probe struct {
	A string
	B int
}

func TestConcurrentBuildsOnce(t *testing.T) {
	before := builds.Load()

	const n = 64
	got := make([]*Codec[probe], n)
	records := make([]*Record, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got[i], errs[i] = For[probe]()
			records[i], _ = Lookup(reflect.TypeFor[probe]())
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(1), builds.Load()-before)
	for i := range n {
		require.NoError(t, errs[i])
		require.Same(t, got[0], got[i])
		require.Same(t, records[0], records[i])
	}
	require.Same(t, got[0].Record(), records[0])
}

func TestNestedTypesAreShared(t *testing.T) {
	type inner struct{ X int }
	type outerA struct{ I inner }
	type outerB struct{ Is []inner }

	before := builds.Load()
	_, err := For[outerA]()
	require.NoError(t, err)
	require.Equal(t, int64(2), builds.Load()-before)

	_, err = For[outerB]()
	require.NoError(t, err)
	require.Equal(t, int64(3), builds.Load()-before, "inner is reused from the cache")
}

type registered struct {
	ID    string `dynamodbav:"id" ddb:"partition"`
	Count int    `dynamodbav:"count"`
}

func TestRegister(t *testing.T) {
	var reads, writes int
	err := Register(
		func(item map[string]types.AttributeValue) (registered, error) {
			reads++
			id, err := DecodeString[string](item["id"])
			if err != nil {
				return registered{}, err
			}
			n, err := DecodeSigned[int](item["count"])
			return registered{ID: id, Count: n}, err
		},
		func(r *registered) (map[string]types.AttributeValue, error) {
			writes++
			return map[string]types.AttributeValue{
				"id":    EncodeString(r.ID),
				"count": EncodeSigned(r.Count),
			}, nil
		},
	)
	require.NoError(t, err)

	c := MustFor[registered]()
	require.True(t, c.Record().Generated())
	require.Equal(t, "id", c.Record().PartitionAttr())

	item, err := c.Write(&registered{ID: "x", Count: 3})
	require.NoError(t, err)
	got, err := c.Read(item)
	require.NoError(t, err)
	require.Equal(t, registered{ID: "x", Count: 3}, got)
	require.Equal(t, 1, reads)
	require.Equal(t, 1, writes)

	err = Register[registered](nil, nil)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestValueHelpers(t *testing.T) {
	list := []address{{City: "Oslo"}, {City: "Bergen"}}
	av, err := EncodeValue(list)
	require.NoError(t, err)
	require.IsType(t, &types.AttributeValueMemberL{}, av)

	got, err := DecodeValue[[]address](av)
	require.NoError(t, err)
	require.Equal(t, list, got)

	_, err = EncodeValue(make(chan int))
	require.ErrorIs(t, err, ErrUnsupportedField)
}

func TestScalarHelpers(t *testing.T) {
	n, err := DecodeSigned[int64](&types.AttributeValueMemberN{Value: "1E+2"})
	require.NoError(t, err)
	require.Equal(t, int64(100), n)

	_, err = DecodeSigned[int8](&types.AttributeValueMemberN{Value: "300"})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = DecodeSigned[int](&types.AttributeValueMemberN{Value: "1.5"})
	require.ErrorIs(t, err, ErrInvalidValue)

	_, err = EncodeFloat(1.0 / zero())
	require.ErrorIs(t, err, ErrInvalidValue)

	d, err := DecodeDecimal(&types.AttributeValueMemberN{Value: "0.30000000000000000001"})
	require.NoError(t, err)
	require.Equal(t, "0.30000000000000000001", EncodeDecimal(d).(*types.AttributeValueMemberN).Value)
}

func TestTimesReadBackInUTC(t *testing.T) {
	oslo := time.FixedZone("CET", 3600)
	for _, v := range []time.Time{
		time.Date(2024, 1, 2, 4, 4, 5, 6, oslo),
		time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC).In(time.Local),
		time.Now(),
	} {
		av := EncodeTime(v)
		require.True(t, strings.HasSuffix(av.(*types.AttributeValueMemberS).Value, "Z"))
		got, err := DecodeTime(av)
		require.NoError(t, err)
		require.True(t, got == v.UTC(), "got %v, want %v", got, v.UTC())
	}

	c, err := For[product]()
	require.NoError(t, err)
	p := fullProduct()
	p.Created = time.Date(2024, 1, 2, 4, 4, 5, 6, oslo)
	item, err := c.Write(&p)
	require.NoError(t, err)
	require.Equal(t, &types.AttributeValueMemberS{Value: "2024-01-02T03:04:05.000000006Z"}, item["created"])
	got, err := c.Read(item)
	require.NoError(t, err)
	require.Equal(t, p.Created.UTC(), got.Created)
}

func zero() float64 { return 0 }

func TestLogsBuilds(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
	defer SetLogger(zerolog.Nop())

	type logged struct{ A string }
	_, err := For[logged]()
	require.NoError(t, err)
	require.Contains(t, buf.String(), "compiled record codec")
	require.Contains(t, buf.String(), "codec.logged")
}
