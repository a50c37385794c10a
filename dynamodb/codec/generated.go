package codec

import (
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Helpers for code emitted by codecgen.

// FieldError adds the attribute name to an error returned by a decoder.
func FieldError(err error, attr string) error {
	return withField(err, attr)
}

// IsZero reports whether v is the zero value of its type.
func IsZero[V any](v V) bool {
	return reflect.ValueOf(&v).Elem().IsZero()
}

// ItemWriter collects the attributes of an item. The first error is kept
// and returned by Item.
type ItemWriter struct {
	item map[string]types.AttributeValue
	err  error
}

func NewItemWriter(size int) *ItemWriter {
	return &ItemWriter{item: make(map[string]types.AttributeValue, size)}
}

// Attr returns the slot for an attribute.
func (w *ItemWriter) Attr(name string) AttrSlot {
	return AttrSlot{w: w, name: name}
}

func (w *ItemWriter) Item() (map[string]types.AttributeValue, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.item, nil
}

type AttrSlot struct {
	w    *ItemWriter
	name string
}

// Set stores av unless it is nil.
func (s AttrSlot) Set(av types.AttributeValue) {
	if av != nil {
		s.w.item[s.name] = av
	}
}

// SetE is Set for encoders that can fail.
func (s AttrSlot) SetE(av types.AttributeValue, err error) {
	if err != nil {
		if s.w.err == nil {
			s.w.err = fmt.Errorf("failed to encode attribute %s: %w", s.name, err)
		}
		return
	}
	s.Set(av)
}
