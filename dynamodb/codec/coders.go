package codec

import (
	"fmt"
	"reflect"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// coder converts one value. encode returns a nil attribute value when
// the value is absent and should be omitted. decode is never called with
// an absent attribute at the top level of a record, but must accept NULL
// inside collections.
type coder struct {
	encode func(v reflect.Value) (types.AttributeValue, error)
	decode func(av types.AttributeValue, v reflect.Value) error
}

var (
	timeType    = reflect.TypeFor[time.Time]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
	decimalType = reflect.TypeFor[decimal.Decimal]()
)

func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

func specialCoder(t reflect.Type) (coder, bool) {
	switch {
	case t == timeType:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeTime(v.Interface().(time.Time)), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				tm, err := DecodeTime(av)
				if err != nil {
					return err
				}
				v.Set(reflect.ValueOf(tm))
				return nil
			},
		}, true
	case t == uuidType:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeUUID(v.Interface().(uuid.UUID)), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				u, err := DecodeUUID(av)
				if err != nil {
					return err
				}
				v.Set(reflect.ValueOf(u))
				return nil
			},
		}, true
	case t == decimalType:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeDecimal(v.Interface().(decimal.Decimal)), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				d, err := DecodeDecimal(av)
				if err != nil {
					return err
				}
				v.Set(reflect.ValueOf(d))
				return nil
			},
		}, true
	case isBytes(t):
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				if v.IsNil() {
					return nil, nil
				}
				return EncodeBytes(v.Bytes()), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				b, err := DecodeBytes(av)
				if err != nil {
					return err
				}
				v.SetBytes(b)
				return nil
			},
		}, true
	}
	return coder{}, false
}

func scalarCoder(t reflect.Type) (coder, bool) {
	switch t.Kind() {
	case reflect.String:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeString(v.String()), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				s, err := DecodeString[string](av)
				if err != nil {
					return err
				}
				v.SetString(s)
				return nil
			},
		}, true
	case reflect.Bool:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeBool(v.Bool()), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				b, err := DecodeBool[bool](av)
				if err != nil {
					return err
				}
				v.SetBool(b)
				return nil
			},
		}, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeSigned(v.Int()), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				n, err := DecodeSigned[int64](av)
				if err != nil {
					return err
				}
				if v.OverflowInt(n) {
					return invalid("N within range of "+t.String(), fmt.Sprint(n))
				}
				v.SetInt(n)
				return nil
			},
		}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeUnsigned(v.Uint()), nil
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				n, err := DecodeUnsigned[uint64](av)
				if err != nil {
					return err
				}
				if v.OverflowUint(n) {
					return invalid("N within range of "+t.String(), fmt.Sprint(n))
				}
				v.SetUint(n)
				return nil
			},
		}, true
	case reflect.Float32:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeFloat(float32(v.Float()))
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				f, err := DecodeFloat[float32](av)
				if err != nil {
					return err
				}
				v.SetFloat(float64(f))
				return nil
			},
		}, true
	case reflect.Float64:
		return coder{
			encode: func(v reflect.Value) (types.AttributeValue, error) {
				return EncodeFloat(v.Float())
			},
			decode: func(av types.AttributeValue, v reflect.Value) error {
				f, err := DecodeFloat[float64](av)
				if err != nil {
					return err
				}
				v.SetFloat(f)
				return nil
			},
		}, true
	}
	return coder{}, false
}

// nullableCoder wraps the coder of a pointer's element. A nil pointer is
// omitted and NULL reads back as nil.
func nullableCoder(t reflect.Type, elem coder) coder {
	return coder{
		encode: func(v reflect.Value) (types.AttributeValue, error) {
			if v.IsNil() {
				return nil, nil
			}
			return elem.encode(v.Elem())
		},
		decode: func(av types.AttributeValue, v reflect.Value) error {
			if isNull(av) {
				v.Set(reflect.Zero(t))
				return nil
			}
			p := reflect.New(t.Elem())
			if err := elem.decode(av, p.Elem()); err != nil {
				return err
			}
			v.Set(p)
			return nil
		},
	}
}

func complexCoder(rec *Record) coder {
	return coder{
		encode: func(v reflect.Value) (types.AttributeValue, error) {
			m, err := rec.write(v)
			if err != nil {
				return nil, err
			}
			return &types.AttributeValueMemberM{Value: m}, nil
		},
		decode: func(av types.AttributeValue, v reflect.Value) error {
			if isNull(av) {
				v.Set(reflect.Zero(v.Type()))
				return nil
			}
			m, ok := av.(*types.AttributeValueMemberM)
			if !ok {
				return mismatch("M", av)
			}
			v.Set(reflect.Zero(v.Type()))
			return rec.read(m.Value, v)
		},
	}
}

// listCoder writes slices as L. Absent elements are written as NULL.
func listCoder(t reflect.Type, elem coder) coder {
	return coder{
		encode: func(v reflect.Value) (types.AttributeValue, error) {
			if v.IsNil() {
				return nil, nil
			}
			out := make([]types.AttributeValue, v.Len())
			for i := range out {
				av, err := elem.encode(v.Index(i))
				if err != nil {
					return nil, withField(err, fmt.Sprintf("[%d]", i))
				}
				if av == nil {
					av = &types.AttributeValueMemberNULL{Value: true}
				}
				out[i] = av
			}
			return &types.AttributeValueMemberL{Value: out}, nil
		},
		decode: func(av types.AttributeValue, v reflect.Value) error {
			if isNull(av) {
				v.Set(reflect.Zero(t))
				return nil
			}
			l, ok := av.(*types.AttributeValueMemberL)
			if !ok {
				return mismatch("L", av)
			}
			s := reflect.MakeSlice(t, len(l.Value), len(l.Value))
			for i, e := range l.Value {
				if err := elem.decode(e, s.Index(i)); err != nil {
					return withField(err, fmt.Sprintf("[%d]", i))
				}
			}
			v.Set(s)
			return nil
		},
	}
}

// mapCoder writes string keyed maps as M.
func mapCoder(t reflect.Type, elem coder) coder {
	return coder{
		encode: func(v reflect.Value) (types.AttributeValue, error) {
			if v.IsNil() {
				return nil, nil
			}
			out := make(map[string]types.AttributeValue, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				k := iter.Key().String()
				av, err := elem.encode(iter.Value())
				if err != nil {
					return nil, withField(err, k)
				}
				if av == nil {
					av = &types.AttributeValueMemberNULL{Value: true}
				}
				out[k] = av
			}
			return &types.AttributeValueMemberM{Value: out}, nil
		},
		decode: func(av types.AttributeValue, v reflect.Value) error {
			if isNull(av) {
				v.Set(reflect.Zero(t))
				return nil
			}
			m, ok := av.(*types.AttributeValueMemberM)
			if !ok {
				return mismatch("M", av)
			}
			out := reflect.MakeMapWithSize(t, len(m.Value))
			for k, e := range m.Value {
				ev := reflect.New(t.Elem()).Elem()
				if err := elem.decode(e, ev); err != nil {
					return withField(err, k)
				}
				key := reflect.New(t.Key()).Elem()
				key.SetString(k)
				out.SetMapIndex(key, ev)
			}
			v.Set(out)
			return nil
		},
	}
}

// setCoder writes slices of strings, numbers or byte slices as SS, NS or
// BS. Empty sets can't be stored and are omitted.
func setCoder(t reflect.Type) (coder, bool) {
	elemType := t.Elem()
	elem, ok := scalarCoder(elemType)
	tag := ""
	switch {
	case isBytes(elemType):
		elem, _ = specialCoder(elemType)
		tag = "BS"
	case elemType == decimalType:
		elem, _ = specialCoder(elemType)
		tag = "NS"
	case !ok:
		return coder{}, false
	case elemType.Kind() == reflect.String:
		tag = "SS"
	case elemType.Kind() == reflect.Bool:
		return coder{}, false
	default:
		tag = "NS"
	}

	return coder{
		encode: func(v reflect.Value) (types.AttributeValue, error) {
			if v.Len() == 0 {
				return nil, nil
			}
			switch tag {
			case "BS":
				out := make([][]byte, v.Len())
				for i := range out {
					out[i] = v.Index(i).Bytes()
				}
				return &types.AttributeValueMemberBS{Value: out}, nil
			}
			out := make([]string, v.Len())
			seen := make(map[string]struct{}, v.Len())
			for i := range out {
				av, err := elem.encode(v.Index(i))
				if err != nil {
					return nil, withField(err, fmt.Sprintf("[%d]", i))
				}
				switch av := av.(type) {
				case *types.AttributeValueMemberS:
					out[i] = av.Value
				case *types.AttributeValueMemberN:
					out[i] = av.Value
				}
				if _, dup := seen[out[i]]; dup {
					return nil, fmt.Errorf("%w: duplicate set element %q", ErrInvalidValue, out[i])
				}
				seen[out[i]] = struct{}{}
			}
			if tag == "SS" {
				return &types.AttributeValueMemberSS{Value: out}, nil
			}
			return &types.AttributeValueMemberNS{Value: out}, nil
		},
		decode: func(av types.AttributeValue, v reflect.Value) error {
			if isNull(av) {
				v.Set(reflect.Zero(t))
				return nil
			}
			var elems []types.AttributeValue
			switch av := av.(type) {
			case *types.AttributeValueMemberSS:
				if tag != "SS" {
					return mismatch(tag, av)
				}
				for _, s := range av.Value {
					elems = append(elems, &types.AttributeValueMemberS{Value: s})
				}
			case *types.AttributeValueMemberNS:
				if tag != "NS" {
					return mismatch(tag, av)
				}
				for _, s := range av.Value {
					elems = append(elems, &types.AttributeValueMemberN{Value: s})
				}
			case *types.AttributeValueMemberBS:
				if tag != "BS" {
					return mismatch(tag, av)
				}
				for _, b := range av.Value {
					elems = append(elems, &types.AttributeValueMemberB{Value: b})
				}
			default:
				return mismatch(tag, av)
			}
			s := reflect.MakeSlice(t, len(elems), len(elems))
			for i, e := range elems {
				if err := elem.decode(e, s.Index(i)); err != nil {
					return withField(err, fmt.Sprintf("[%d]", i))
				}
			}
			v.Set(s)
			return nil
		},
	}, true
}
