package signal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Endianness selects the bit-numbering convention of a signal.
type Endianness int

const (
	// Intel numbers bits consecutively from the LSB of byte 0 upward.
	Intel Endianness = iota
	// Motorola uses the DBC MSB-first convention: the start bit is the
	// most significant bit of the field and extraction walks toward less
	// significant bits, wrapping to bit 7 of the next higher-indexed byte.
	Motorola
)

func (e Endianness) String() string {
	switch e {
	case Intel:
		return "intel"
	case Motorola:
		return "motorola"
	default:
		return "unknown"
	}
}

// Descriptor is the static definition of one bit-packed signal.
type Descriptor struct {
	Name       string
	StartBit   int
	BitLength  int
	Endianness Endianness
	Signed     bool
	Scale      float64
	Offset     float64
	Unit       string
	Min        float64
	Max        float64
}

// Value is one decoded signal: the raw field, the physical value, and a
// display string with the unit attached.
type Value struct {
	Raw      uint64
	Physical float64
	Display  string
}

var ErrUndecodable = errors.New("signal: undecodable")

// Decode extracts a descriptor's field from a frame payload and converts
// it to a physical value. A field that does not fit inside data returns
// ErrUndecodable; it never reads out of bounds and never panics.
func Decode(data []byte, d Descriptor) (Value, error) {
	raw, err := extract(data, d)
	if err != nil {
		return Value{}, err
	}

	var phys float64
	if d.Signed {
		phys = float64(signExtend(raw, d.BitLength))*d.Scale + d.Offset
	} else {
		phys = float64(raw)*d.Scale + d.Offset
	}

	return Value{Raw: raw, Physical: phys, Display: display(phys, d.Unit)}, nil
}

// Encode writes a physical value into data at the descriptor's bit
// position. The inverse of Decode within one unit of Scale precision.
func Encode(physical float64, d Descriptor, data []byte) error {
	if d.Scale == 0 {
		return fmt.Errorf("%w: %s has zero scale", ErrUndecodable, d.Name)
	}
	raw := uint64(int64(math.Round((physical - d.Offset) / d.Scale)))
	if d.BitLength < 64 {
		raw &= (uint64(1) << uint(d.BitLength)) - 1
	}
	return insert(data, d, raw)
}

func extract(data []byte, d Descriptor) (uint64, error) {
	if d.BitLength < 1 || d.BitLength > 64 || d.StartBit < 0 {
		return 0, fmt.Errorf("%w: %s bits %d+%d", ErrUndecodable, d.Name, d.StartBit, d.BitLength)
	}

	var raw uint64
	switch d.Endianness {
	case Motorola:
		byteIdx := d.StartBit / 8
		bitIdx := d.StartBit % 8
		for i := 0; i < d.BitLength; i++ {
			if byteIdx >= len(data) {
				return 0, fmt.Errorf("%w: %s exceeds %d bytes", ErrUndecodable, d.Name, len(data))
			}
			raw = raw<<1 | uint64(data[byteIdx]>>uint(bitIdx)&1)
			bitIdx--
			if bitIdx < 0 {
				bitIdx = 7
				byteIdx++
			}
		}
	default:
		end := d.StartBit + d.BitLength - 1
		if end/8 >= len(data) {
			return 0, fmt.Errorf("%w: %s exceeds %d bytes", ErrUndecodable, d.Name, len(data))
		}
		for i := 0; i < d.BitLength; i++ {
			pos := d.StartBit + i
			raw |= uint64(data[pos/8]>>uint(pos%8)&1) << uint(i)
		}
	}
	return raw, nil
}

func insert(data []byte, d Descriptor, raw uint64) error {
	if d.BitLength < 1 || d.BitLength > 64 || d.StartBit < 0 {
		return fmt.Errorf("%w: %s bits %d+%d", ErrUndecodable, d.Name, d.StartBit, d.BitLength)
	}

	switch d.Endianness {
	case Motorola:
		byteIdx := d.StartBit / 8
		bitIdx := d.StartBit % 8
		for i := d.BitLength - 1; i >= 0; i-- {
			if byteIdx >= len(data) {
				return fmt.Errorf("%w: %s exceeds %d bytes", ErrUndecodable, d.Name, len(data))
			}
			if raw>>uint(i)&1 == 1 {
				data[byteIdx] |= 1 << uint(bitIdx)
			} else {
				data[byteIdx] &^= 1 << uint(bitIdx)
			}
			bitIdx--
			if bitIdx < 0 {
				bitIdx = 7
				byteIdx++
			}
		}
	default:
		end := d.StartBit + d.BitLength - 1
		if end/8 >= len(data) {
			return fmt.Errorf("%w: %s exceeds %d bytes", ErrUndecodable, d.Name, len(data))
		}
		for i := 0; i < d.BitLength; i++ {
			pos := d.StartBit + i
			if raw>>uint(i)&1 == 1 {
				data[pos/8] |= 1 << uint(pos%8)
			} else {
				data[pos/8] &^= 1 << uint(pos%8)
			}
		}
	}
	return nil
}

// signExtend interprets raw as a two's-complement value of bits width.
func signExtend(raw uint64, bits int) int64 {
	if bits >= 64 {
		return int64(raw)
	}
	if raw&(uint64(1)<<uint(bits-1)) != 0 {
		return int64(raw | ^uint64(0)<<uint(bits))
	}
	return int64(raw)
}

func display(phys float64, unit string) string {
	s := strconv.FormatFloat(phys, 'g', -1, 64)
	if unit == "" {
		return s
	}
	return s + " " + unit
}
