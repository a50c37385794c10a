package codec

import (
	"fmt"
	"math"
	"strconv"
	"time"
	"unsafe"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/exp/constraints"
)

// The helpers in this file convert single values. They are used by the
// runtime codec and by code emitted by codecgen. Decoders return the zero
// value for the NULL marker.

func isNull(av types.AttributeValue) bool {
	if av == nil {
		return true
	}
	_, ok := av.(*types.AttributeValueMemberNULL)
	return ok
}

func EncodeString[T ~string](v T) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: string(v)}
}

func DecodeString[T ~string](av types.AttributeValue) (T, error) {
	if isNull(av) {
		return "", nil
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", mismatch("S", av)
	}
	return T(s.Value), nil
}

func EncodeBool[T ~bool](v T) types.AttributeValue {
	return &types.AttributeValueMemberBOOL{Value: bool(v)}
}

func DecodeBool[T ~bool](av types.AttributeValue) (T, error) {
	if isNull(av) {
		return false, nil
	}
	b, ok := av.(*types.AttributeValueMemberBOOL)
	if !ok {
		return false, mismatch("BOOL", av)
	}
	return T(b.Value), nil
}

func EncodeSigned[T constraints.Signed](v T) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}
}

func DecodeSigned[T constraints.Signed](av types.AttributeValue) (T, error) {
	s, err := numberText(av)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(s)
		if derr != nil || !d.IsInteger() || !d.BigInt().IsInt64() {
			return 0, invalid(fmt.Sprintf("N holding %T", T(0)), s)
		}
		n = d.IntPart()
	}
	if int64(T(n)) != n {
		return 0, invalid(fmt.Sprintf("N within range of %T", T(0)), s)
	}
	return T(n), nil
}

func EncodeUnsigned[T constraints.Unsigned](v T) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(v), 10)}
}

func DecodeUnsigned[T constraints.Unsigned](av types.AttributeValue) (T, error) {
	s, err := numberText(av)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		d, derr := decimal.NewFromString(s)
		if derr != nil || !d.IsInteger() || d.IsNegative() || !d.BigInt().IsUint64() {
			return 0, invalid(fmt.Sprintf("N holding %T", T(0)), s)
		}
		n = d.BigInt().Uint64()
	}
	if uint64(T(n)) != n {
		return 0, invalid(fmt.Sprintf("N within range of %T", T(0)), s)
	}
	return T(n), nil
}

// EncodeFloat writes the shortest decimal text that reads back to v.
// NaN and infinities have no number representation.
func EncodeFloat[T constraints.Float](v T) (types.AttributeValue, error) {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v is not a number", ErrInvalidValue, f)
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(f, 'f', -1, floatBits[T]())}, nil
}

func DecodeFloat[T constraints.Float](av types.AttributeValue) (T, error) {
	s, err := numberText(av)
	if err != nil || s == "" {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, floatBits[T]())
	if err != nil {
		return 0, invalid(fmt.Sprintf("N holding %T", T(0)), s)
	}
	return T(f), nil
}

func floatBits[T constraints.Float]() int {
	var zero T
	return int(unsafe.Sizeof(zero)) * 8
}

func numberText(av types.AttributeValue) (string, error) {
	if isNull(av) {
		return "", nil
	}
	n, ok := av.(*types.AttributeValueMemberN)
	if !ok {
		return "", mismatch("N", av)
	}
	return n.Value, nil
}

// EncodeBytes returns nil for a nil slice.
func EncodeBytes(v []byte) types.AttributeValue {
	if v == nil {
		return nil
	}
	return &types.AttributeValueMemberB{Value: v}
}

func DecodeBytes(av types.AttributeValue) ([]byte, error) {
	if isNull(av) {
		return nil, nil
	}
	b, ok := av.(*types.AttributeValueMemberB)
	if !ok {
		return nil, mismatch("B", av)
	}
	return append([]byte{}, b.Value...), nil
}

// EncodeTime stores times in UTC as RFC 3339 strings with nanoseconds.
// Zone and location are dropped, so stored times sort lexically.
func EncodeTime(v time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v.UTC().Format(time.RFC3339Nano)}
}

func DecodeTime(av types.AttributeValue) (time.Time, error) {
	s, err := DecodeString[string](av)
	if err != nil || s == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, invalid("S holding an RFC 3339 time", s)
	}
	return t, nil
}

func EncodeUUID(v uuid.UUID) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v.String()}
}

func DecodeUUID(av types.AttributeValue) (uuid.UUID, error) {
	s, err := DecodeString[string](av)
	if err != nil || s == "" {
		return uuid.Nil, err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, invalid("S holding a UUID", s)
	}
	return u, nil
}

// EncodeDecimal keeps the exact decimal text.
func EncodeDecimal(v decimal.Decimal) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: v.String()}
}

func DecodeDecimal(av types.AttributeValue) (decimal.Decimal, error) {
	s, err := numberText(av)
	if err != nil || s == "" {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, invalid("N holding a decimal", s)
	}
	return d, nil
}
