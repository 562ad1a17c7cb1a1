package cache

import (
	"fmt"

	"github.com/objectfs/tilecache/pkg/errors"
)

// SampleType is the numeric type of the samples stored in a tile's banks
type SampleType int

const (
	SampleByte SampleType = iota
	SampleUShort
	SampleShort
	SampleInt
	SampleFloat
	SampleDouble
)

// Size returns the width of one sample in bytes
func (s SampleType) Size() int {
	switch s {
	case SampleByte:
		return 1
	case SampleUShort, SampleShort:
		return 2
	case SampleInt, SampleFloat:
		return 4
	case SampleDouble:
		return 8
	default:
		return 0
	}
}

func (s SampleType) String() string {
	switch s {
	case SampleByte:
		return "byte"
	case SampleUShort:
		return "ushort"
	case SampleShort:
		return "short"
	case SampleInt:
		return "int"
	case SampleFloat:
		return "float"
	case SampleDouble:
		return "double"
	default:
		return fmt.Sprintf("SampleType(%d)", int(s))
	}
}

// Tile is the raw data of one tile: one byte slice per storage bank, all of
// equal length. The cache treats the bytes as opaque.
type Tile struct {
	Banks      [][]byte
	SampleType SampleType
	Writable   bool

	// MinX and MinY locate the tile in the owner's coordinate space
	MinX int
	MinY int
}

// NewTile allocates a zeroed tile with numBanks banks of bankLength samples each
func NewTile(sampleType SampleType, numBanks, bankLength int, writable bool) *Tile {
	banks := make([][]byte, numBanks)
	for i := range banks {
		banks[i] = make([]byte, bankLength*sampleType.Size())
	}
	return &Tile{Banks: banks, SampleType: sampleType, Writable: writable}
}

// ByteLength returns the total size of the tile's banks in bytes
func (t *Tile) ByteLength() int64 {
	var n int64
	for _, bank := range t.Banks {
		n += int64(len(bank))
	}
	return n
}

// BankLength returns the length of one bank in samples
func (t *Tile) BankLength() int {
	if len(t.Banks) == 0 || t.SampleType.Size() == 0 {
		return 0
	}
	return len(t.Banks[0]) / t.SampleType.Size()
}

// Validate checks the bank layout
func (t *Tile) Validate() error {
	if t == nil {
		return invalidTile("tile is nil")
	}
	width := t.SampleType.Size()
	if width == 0 {
		return invalidTile(fmt.Sprintf("unknown sample type %d", int(t.SampleType)))
	}
	if len(t.Banks) == 0 {
		return invalidTile("tile has no banks")
	}
	bankBytes := len(t.Banks[0])
	for i, bank := range t.Banks {
		if len(bank) != bankBytes {
			return invalidTile(fmt.Sprintf("bank %d has %d bytes, bank 0 has %d", i, len(bank), bankBytes))
		}
	}
	if bankBytes%width != 0 {
		return invalidTile(fmt.Sprintf("bank length %d is not a multiple of the %s sample width", bankBytes, t.SampleType))
	}
	return nil
}

func invalidTile(msg string) error {
	return errors.NewError(errors.ErrCodeInvalidTile, msg).WithComponent(component)
}
