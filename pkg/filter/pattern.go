package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Returned whenever the match expression passed by the user is invalid
var ErrInvalidPattern = errors.New("invalid id pattern")

// A match pattern for a CAN identifier.
// Bits captured by Mask are compared to the ones in Value,
// an id latches the pattern if (id & Mask) == Value.
type IdPattern struct {
	Value uint32
	Mask  uint32
}

// Match reports whether the identifier should be filtered in.
func (p IdPattern) Match(id uint32) bool {
	return id&p.Mask == p.Value
}

func (p IdPattern) String() string {
	return fmt.Sprintf("0x%08x; 0x%08x", p.Value, p.Mask)
}

// Matcher is anything able to accept or reject an identifier.
// Satisfied by IdPattern and PatternList.
type Matcher interface {
	Match(id uint32) bool
}

// PatternList accepts an identifier when any member does.
type PatternList []IdPattern

func (l PatternList) Match(id uint32) bool {
	for _, pattern := range l {
		if pattern.Match(id) {
			return true
		}
	}
	return false
}

// CompileList compiles a set of alternative match expressions.
func CompileList(expressions ...string) (PatternList, error) {
	list := make(PatternList, 0, len(expressions))
	for _, expression := range expressions {
		pattern, err := Compile(expression)
		if err != nil {
			return nil, err
		}
		list = append(list, pattern)
	}
	return list, nil
}

func convertFromHex(digits string) (uint32, error) {
	value, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w : expected hex digits, got %q", ErrInvalidPattern, digits)
	}
	return uint32(value), nil
}

// Compile converts a match expression given by the user to an
// acceptance pattern.
//
// Supported forms :
//
//	*123      low order digits,  expands to value 0x00000123, mask 0x00000FFF
//	123*      high order digits, expands to value 0x12300000, mask 0xFFF00000
//	FFFF,1234 explicit MASK,VALUE pair (hex, no 0x prefix)
//	1234      exact 32 bit match
func Compile(expression string) (IdPattern, error) {
	if strings.Contains(expression, ",") {
		fields := strings.Split(expression, ",")
		if len(fields) != 2 {
			return IdPattern{}, fmt.Errorf("%w : expected two comma separated values, got %v", ErrInvalidPattern, len(fields))
		}
		mask, err := convertFromHex(fields[0])
		if err != nil {
			return IdPattern{}, err
		}
		value, err := convertFromHex(fields[1])
		if err != nil {
			return IdPattern{}, err
		}
		return IdPattern{Value: value, Mask: mask}, nil
	}

	if digits, ok := strings.CutPrefix(expression, "*"); ok {
		value, err := convertFromHex(digits)
		if err != nil {
			return IdPattern{}, err
		}
		// Each hex digit covers 4 bits of the 32 bit identifier
		bitSize := len(digits) * 4
		mask := uint32(uint64(1)<<bitSize - 1)
		return IdPattern{Value: value, Mask: mask}, nil
	}

	if digits, ok := strings.CutSuffix(expression, "*"); ok {
		value, err := convertFromHex(digits)
		if err != nil {
			return IdPattern{}, err
		}
		bitSize := len(digits) * 4
		shift := 32 - bitSize
		mask := uint32((uint64(1)<<bitSize - 1) << shift)
		return IdPattern{Value: value << shift, Mask: mask}, nil
	}

	value, err := convertFromHex(expression)
	if err != nil {
		return IdPattern{}, err
	}
	return IdPattern{Value: value, Mask: 0xFFFFFFFF}, nil
}
