package codec

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
)

var (
	// cache maps reflect.Type to *Record. Records are never replaced.
	cache sync.Map
	// values maps reflect.Type to coder for EncodeValue and DecodeValue.
	values sync.Map
	// codecs maps reflect.Type to *Codec[T].
	codecs sync.Map

	// buildMu serializes building. Builds of a type and the types it
	// references happen in one critical section.
	buildMu sync.Mutex

	// builds counts record plans built, for tests.
	builds atomic.Int64

	logger atomic.Pointer[zerolog.Logger]
)

func init() {
	nop := zerolog.Nop()
	logger.Store(&nop)
}

// SetLogger sets the logger used to report codec builds.
func SetLogger(l zerolog.Logger) {
	logger.Store(&l)
}

// Lookup returns the record codec for the struct type t, building it on
// first use. Hits don't lock. A failed build is not cached and fails the
// same way on every call.
func Lookup(t reflect.Type) (*Record, error) {
	if r, ok := cache.Load(t); ok {
		return r.(*Record), nil
	}

	buildMu.Lock()
	defer buildMu.Unlock()
	if r, ok := cache.Load(t); ok {
		return r.(*Record), nil
	}

	b := newBuilder()
	rec, err := b.record(t)
	if err != nil {
		return nil, err
	}
	b.commit()
	return rec, nil
}

func (b *builder) commit() {
	log := logger.Load()
	for _, rec := range b.order {
		cache.Store(rec.typ, rec)
		log.Debug().
			Str("type", rec.typ.String()).
			Int("fields", len(rec.fields)).
			Bool("generated", rec.generated).
			Msg("compiled record codec")
	}
}

// Register installs generated read and write functions for T. The field
// plan is still built so keys and field metadata are available. It must
// run before T is used with any codec, typically from an init function.
func Register[T any](read func(map[string]types.AttributeValue) (T, error), write func(*T) (map[string]types.AttributeValue, error)) error {
	t := reflect.TypeFor[T]()

	buildMu.Lock()
	defer buildMu.Unlock()
	if _, ok := cache.Load(t); ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, t)
	}

	b := newBuilder()
	rec, err := b.record(t)
	if err != nil {
		return err
	}
	rec.generated = true
	rec.read = func(item map[string]types.AttributeValue, dst reflect.Value) error {
		v, err := read(item)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(v))
		return nil
	}
	rec.write = func(src reflect.Value) (map[string]types.AttributeValue, error) {
		v := src.Interface().(T)
		return write(&v)
	}
	b.commit()
	return nil
}

type valueKey struct {
	t   reflect.Type
	set bool
}

func valueCoder(t reflect.Type, set bool) (coder, error) {
	key := valueKey{t, set}
	if c, ok := values.Load(key); ok {
		return c.(coder), nil
	}

	buildMu.Lock()
	defer buildMu.Unlock()
	if c, ok := values.Load(key); ok {
		return c.(coder), nil
	}

	b := newBuilder()
	c, _, err := b.coderFor(t, tagOptions{set: set})
	if errors.Is(err, errUnsupported) {
		return coder{}, &CompileError{Type: t, Err: ErrUnsupportedField}
	}
	if err != nil {
		return coder{}, err
	}
	b.commit()
	values.Store(key, c)
	return c, nil
}

// EncodeValue converts any value the codec supports as a field. A nil
// result means the value is absent.
func EncodeValue[V any](v V) (types.AttributeValue, error) {
	return encodeValue(v, false)
}

func DecodeValue[V any](av types.AttributeValue) (V, error) {
	return decodeValue[V](av, false)
}

// EncodeSet is like EncodeValue for fields tagged with the set option.
func EncodeSet[V any](v V) (types.AttributeValue, error) {
	return encodeValue(v, true)
}

func DecodeSet[V any](av types.AttributeValue) (V, error) {
	return decodeValue[V](av, true)
}

func encodeValue[V any](v V, set bool) (types.AttributeValue, error) {
	c, err := valueCoder(reflect.TypeFor[V](), set)
	if err != nil {
		return nil, err
	}
	return c.encode(reflect.ValueOf(&v).Elem())
}

func decodeValue[V any](av types.AttributeValue, set bool) (V, error) {
	var v V
	if isNull(av) {
		return v, nil
	}
	c, err := valueCoder(reflect.TypeFor[V](), set)
	if err != nil {
		return v, err
	}
	err = c.decode(av, reflect.ValueOf(&v).Elem())
	return v, err
}
