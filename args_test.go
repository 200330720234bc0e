package deployflow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func TestConvertToABIType(t *testing.T) {
	uint256, _ := abi.NewType("uint256", "", nil)
	int128, _ := abi.NewType("int128", "", nil)
	uint8T, _ := abi.NewType("uint8", "", nil)
	address, _ := abi.NewType("address", "", nil)

	tests := []struct {
		name    string
		value   any
		typ     abi.Type
		wantBig int64
		asIs    bool
	}{
		{"int to uint256", 1000, uint256, 1000, false},
		{"int64 to uint256", int64(7), uint256, 7, false},
		{"uint64 to uint256", uint64(9), uint256, 9, false},
		{"int32 to int128", int32(-3), int128, -3, false},
		{"uint32 to uint256", uint32(4), uint256, 4, false},
		{"narrow slot left alone", uint8(5), uint8T, 0, true},
		{"address left alone", common.HexToAddress("0x01"), address, 0, true},
		{"big.Int passes through", big.NewInt(11), uint256, 11, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertToABIType(tt.value, tt.typ)
			if tt.asIs {
				if got != tt.value {
					t.Errorf("Expected value unchanged, got %v (%T)", got, got)
				}
				return
			}
			b, ok := got.(*big.Int)
			if !ok {
				t.Fatalf("Expected *big.Int, got %T", got)
			}
			if b.Int64() != tt.wantBig {
				t.Errorf("Expected %d, got %s", tt.wantBig, b)
			}
		})
	}
}

func TestPackArgs(t *testing.T) {
	method := MustParseABI(erc20ABIJSON).Methods["transfer"]

	t.Run("packs normalized values", func(t *testing.T) {
		packed, err := packArgs("transfer", method.Inputs, ArgList{common.HexToAddress("0x02"), 5}.Values())
		if err != nil {
			t.Fatalf("packArgs failed: %v", err)
		}
		if len(packed) != 64 {
			t.Errorf("Expected 64 bytes, got %d", len(packed))
		}
	})

	t.Run("count mismatch", func(t *testing.T) {
		_, err := packArgs("transfer", method.Inputs, []any{common.HexToAddress("0x02")})
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("Expected *ArgumentError, got %v", err)
		}
		if argErr.Index != 1 {
			t.Errorf("Expected index 1, got %d", argErr.Index)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := packArgs("transfer", method.Inputs, []any{"not an address", big.NewInt(1)})
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("Expected *ArgumentError, got %v", err)
		}
		if argErr.Index != -1 {
			t.Errorf("Expected index -1 for packer errors, got %d", argErr.Index)
		}
	})

	t.Run("no args", func(t *testing.T) {
		packed, err := packArgs("constructor", nil, NoArgs{}.Values())
		if err != nil || len(packed) != 0 {
			t.Errorf("Expected empty packing, got %x, %v", packed, err)
		}
	})
}
