package schema

import (
	"errors"
	"fmt"
	"math"
)

type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota // Intel, start bit is the LSB position
	BigEndian                     // Motorola, start bit is the MSB position
)

// Returned when encoding a string value that is not a declared choice
var ErrUnknownChoice = errors.New("unknown choice")

// A named value declared for a signal
type Choice struct {
	Value int64
	Name  string
}

// A Signal is one named field inside a message payload.
// Multiplexed signals carry the name of their selector signal and the
// selector values for which they are present.
type Signal struct {
	Name      string
	Start     uint16
	Length    uint8
	ByteOrder ByteOrder
	Signed    bool
	Float     bool // IEEE 754, length must be 32 or 64
	Scale     float64
	Offset    float64
	Min       *float64
	Max       *float64
	Unit      string
	Choices   []Choice

	Muxer       bool   // this signal selects a multiplex group
	MuxSelector string // empty when the signal is always present
	MuxValues   []int64
}

// ChoiceName resolves a raw value to its declared name.
func (s *Signal) ChoiceName(value int64) (string, bool) {
	for _, choice := range s.Choices {
		if choice.Value == value {
			return choice.Name, true
		}
	}
	return "", false
}

// ChoiceValue resolves a declared name back to its raw value.
func (s *Signal) ChoiceValue(name string) (int64, bool) {
	for _, choice := range s.Choices {
		if choice.Name == name {
			return choice.Value, true
		}
	}
	return 0, false
}

// SoundDefault finds a reasonable initial value for the signal :
// midpoint of the declared range, else first declared choice, else zero.
func (s *Signal) SoundDefault() Value {
	if s.Min != nil && s.Max != nil {
		mid := (*s.Min + *s.Max) / 2
		if !s.Float && isWhole(mid) && isWhole(s.Scale) && isWhole(s.Offset) {
			return int64(mid)
		}
		return mid
	}
	if len(s.Choices) > 0 {
		return s.Choices[0].Name
	}
	if s.Min != nil {
		return *s.Min
	}
	if s.Offset != 0 {
		return s.Offset
	}
	if s.Float || !isWhole(s.Scale) {
		return float64(0)
	}
	return int64(0)
}

// physical converts the extracted raw bits to the signal's
// physical value, resolving declared choices to their names.
func (s *Signal) physical(raw uint64) Value {
	if s.Float {
		var f float64
		if s.Length == 32 {
			f = float64(math.Float32frombits(uint32(raw)))
		} else {
			f = math.Float64frombits(raw)
		}
		return f*s.Scale + s.Offset
	}
	signedRaw := int64(raw)
	if s.Signed {
		signedRaw = signExtend(raw, s.Length)
	}
	if name, ok := s.ChoiceName(signedRaw); ok {
		return name
	}
	if isWhole(s.Scale) && isWhole(s.Offset) {
		return signedRaw*int64(s.Scale) + int64(s.Offset)
	}
	return float64(signedRaw)*s.Scale + s.Offset
}

// raw converts a physical value back to raw bits for encoding.
func (s *Signal) raw(value Value) (uint64, error) {
	if name, ok := value.(string); ok {
		choiceValue, ok := s.ChoiceValue(name)
		if !ok {
			return 0, fmt.Errorf("%w : %q is not declared for signal %v", ErrUnknownChoice, name, s.Name)
		}
		return maskBits(uint64(choiceValue), s.Length), nil
	}
	f, err := toFloat(value)
	if err != nil {
		return 0, fmt.Errorf("signal %v : %w", s.Name, err)
	}
	if s.Float {
		f = (f - s.Offset) / s.Scale
		if s.Length == 32 {
			return uint64(math.Float32bits(float32(f))), nil
		}
		return math.Float64bits(f), nil
	}
	scaled := int64(math.Round((f - s.Offset) / s.Scale))
	return maskBits(uint64(scaled), s.Length), nil
}

func signExtend(raw uint64, length uint8) int64 {
	if length == 0 || length >= 64 {
		return int64(raw)
	}
	if raw&(uint64(1)<<(length-1)) != 0 {
		raw |= ^(uint64(1)<<length - 1)
	}
	return int64(raw)
}

func maskBits(raw uint64, length uint8) uint64 {
	if length >= 64 {
		return raw
	}
	return raw & (uint64(1)<<length - 1)
}
