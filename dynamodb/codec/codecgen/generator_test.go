package codecgen_test

import (
	"go/parser"
	"go/token"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/acksell/ddbq/dynamodb/codec"
	"github.com/acksell/ddbq/dynamodb/codec/codecgen"
)

type Status string

type Dimensions struct {
	Width  int `dynamodbav:"w"`
	Height int `dynamodbav:"h"`
}

type Product struct {
	ID       string          `dynamodbav:"id" ddb:"partition"`
	SKU      string          `dynamodbav:"sku" ddb:"sort"`
	Status   Status          `dynamodbav:"status"`
	Price    decimal.Decimal `dynamodbav:"price"`
	Ratio    float32         `dynamodbav:"ratio,omitempty"`
	Stock    uint32          `dynamodbav:"stock"`
	Active   bool            `dynamodbav:"active"`
	TTL      time.Duration   `dynamodbav:"ttl"`
	Ref      uuid.UUID       `dynamodbav:"ref"`
	Created  time.Time       `dynamodbav:"created"`
	Blob     []byte          `dynamodbav:"blob"`
	Tags     []string        `dynamodbav:"tags,set"`
	Size     *Dimensions     `dynamodbav:"size"`
	Variants []Dimensions    `dynamodbav:"variants"`
	Note     *string         `dynamodbav:"note"`
	Ignored  string          `dynamodbav:"-"`
}

type Review struct {
	ProductID string `dynamodbav:"product_id" ddb:"partition"`
	Stars     int8   `dynamodbav:"stars"`
}

func TestGenerate(t *testing.T) {
	src, err := codecgen.New(codecgen.Config{
		Package: "catalog",
		Types:   []any{Product{}, Review{}},
	}).Generate()
	require.NoError(t, err)

	_, err = parser.ParseFile(token.NewFileSet(), "codec_gen.go", src, parser.AllErrors)
	require.NoError(t, err, "generated code must parse:\n%s", src)

	out := string(src)
	for _, want := range []string{
		"// Code generated by codecgen. DO NOT EDIT.",
		"package catalog",
		`"time"`,
		`"github.com/acksell/ddbq/dynamodb/codec"`,
		"if err := codec.Register(readProduct, writeProduct); err != nil {",
		"if err := codec.Register(readReview, writeReview); err != nil {",
		`if e.ID, err = codec.DecodeString[string](item["id"]); err != nil {`,
		`if e.Status, err = codec.DecodeString[Status](item["status"]); err != nil {`,
		`if e.Price, err = codec.DecodeDecimal(item["price"]); err != nil {`,
		`if e.TTL, err = codec.DecodeSigned[time.Duration](item["ttl"]); err != nil {`,
		`if e.Stock, err = codec.DecodeUnsigned[uint32](item["stock"]); err != nil {`,
		`if e.Tags, err = codec.DecodeSet[[]string](item["tags"]); err != nil {`,
		`if e.Size, err = codec.DecodeValue[*Dimensions](item["size"]); err != nil {`,
		`if e.Variants, err = codec.DecodeValue[[]Dimensions](item["variants"]); err != nil {`,
		`w.Attr("created").Set(codec.EncodeTime(e.Created))`,
		`w.Attr("ref").Set(codec.EncodeUUID(e.Ref))`,
		`w.Attr("blob").Set(codec.EncodeBytes(e.Blob))`,
		`w.Attr("tags").SetE(codec.EncodeSet(e.Tags))`,
		`w.Attr("note").SetE(codec.EncodeValue(e.Note))`,
		"if !codec.IsZero(e.Ratio) {",
		`w.Attr("ratio").SetE(codec.EncodeFloat(e.Ratio))`,
		`if e.Stars, err = codec.DecodeSigned[int8](item["stars"]); err != nil {`,
	} {
		require.Contains(t, out, want)
	}
	require.NotContains(t, out, "Ignored")
	require.NotContains(t, out, "github.com/google/uuid", "uuid fields use codec helpers only")
}

func TestGenerateErrors(t *testing.T) {
	t.Run("no package", func(t *testing.T) {
		_, err := codecgen.New(codecgen.Config{Types: []any{Review{}}}).Generate()
		require.Error(t, err)
	})
	t.Run("not a struct", func(t *testing.T) {
		_, err := codecgen.New(codecgen.Config{Package: "x", Types: []any{&Review{}}}).Generate()
		require.ErrorIs(t, err, codec.ErrNotRecord)
	})
	t.Run("unsupported field", func(t *testing.T) {
		type bad struct{ C chan int }
		_, err := codecgen.New(codecgen.Config{Package: "x", Types: []any{bad{}}}).Generate()
		require.ErrorIs(t, err, codec.ErrUnsupportedField)
	})
	t.Run("types from two packages", func(t *testing.T) {
		_, err := codecgen.New(codecgen.Config{Package: "x", Types: []any{Review{}, codec.Field{}}}).Generate()
		require.ErrorContains(t, err, "one package")
	})
}
