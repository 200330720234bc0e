package deployflow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Args is an ordered tuple of ABI-encodable arguments.
type Args interface {
	Values() []any
}

// NoArgs is the empty argument tuple.
type NoArgs struct{}

// Values returns nil.
func (NoArgs) Values() []any { return nil }

// ArgList is an argument tuple backed by a slice.
type ArgList []any

// Values returns the list itself.
func (l ArgList) Values() []any { return l }

// packArgs normalizes Go integer kinds and packs the values against inputs.
func packArgs(method string, inputs abi.Arguments, values []any) ([]byte, error) {
	converted, err := normalizeArgs(method, inputs, values)
	if err != nil {
		return nil, err
	}
	packed, err := inputs.Pack(converted...)
	if err != nil {
		return nil, &ArgumentError{Method: method, Index: -1, Err: err}
	}
	return packed, nil
}

func normalizeArgs(method string, inputs abi.Arguments, values []any) ([]any, error) {
	if len(values) != len(inputs) {
		return nil, &ArgumentError{
			Method: method,
			Index:  len(values),
			Err:    fmt.Errorf("expected %d arguments, got %d", len(inputs), len(values)),
		}
	}
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = convertToABIType(v, inputs[i].Type)
	}
	return out, nil
}

// convertToABIType handles common Go type conversions for ABI encoding.
// Only uint256/int256-style slots accept *big.Int; narrower types are left
// to the ABI packer's own checks.
func convertToABIType(value any, abiType abi.Type) any {
	if (abiType.T != abi.UintTy && abiType.T != abi.IntTy) || abiType.Size <= 64 {
		return value
	}
	switch v := value.(type) {
	case int:
		return big.NewInt(int64(v))
	case int64:
		return big.NewInt(v)
	case uint64:
		return new(big.Int).SetUint64(v)
	case int32:
		return big.NewInt(int64(v))
	case uint32:
		return new(big.Int).SetUint64(uint64(v))
	default:
		return v
	}
}
