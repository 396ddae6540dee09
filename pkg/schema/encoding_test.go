package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractLittleEndian(t *testing.T) {
	data := []byte{0x34, 0x12, 0xFF, 0x00}
	assert.Equal(t, uint64(0x1234), extractBits(data, 0, 16, LittleEndian))
	assert.Equal(t, uint64(0x34), extractBits(data, 0, 8, LittleEndian))
	assert.Equal(t, uint64(0x12), extractBits(data, 8, 8, LittleEndian))
	// Sub byte field spanning a byte boundary
	assert.Equal(t, uint64(0x23), extractBits(data, 4, 8, LittleEndian))
	// Reads past the payload yield zero bits
	assert.Equal(t, uint64(0), extractBits(data, 32, 8, LittleEndian))
}

func TestExtractBigEndian(t *testing.T) {
	data := []byte{0x12, 0x34, 0x00, 0x00}
	// Motorola start bit is the MSB position, bit 7 of byte 0
	assert.Equal(t, uint64(0x12), extractBits(data, 7, 8, BigEndian))
	assert.Equal(t, uint64(0x1234), extractBits(data, 7, 16, BigEndian))
	// Field starting mid byte, bits 5..2 of 0x12
	assert.Equal(t, uint64(0x4), extractBits(data, 5, 4, BigEndian))
}

func TestInsertLittleEndian(t *testing.T) {
	data := make([]byte, 4)
	insertBits(data, 0, 16, LittleEndian, 0x1234)
	assert.Equal(t, []byte{0x34, 0x12, 0x00, 0x00}, data)

	// Inserting must not disturb neighbouring bits
	data = []byte{0xFF, 0xFF, 0x00, 0x00}
	insertBits(data, 4, 8, LittleEndian, 0x00)
	assert.Equal(t, []byte{0x0F, 0xF0, 0x00, 0x00}, data)
}

func TestInsertBigEndian(t *testing.T) {
	data := make([]byte, 4)
	insertBits(data, 7, 16, BigEndian, 0x1234)
	assert.Equal(t, []byte{0x12, 0x34, 0x00, 0x00}, data)
}

func TestRoundTrip(t *testing.T) {
	for _, order := range []ByteOrder{LittleEndian, BigEndian} {
		data := make([]byte, 8)
		start := uint16(0)
		if order == BigEndian {
			start = 7
		}
		insertBits(data, start, 24, order, 0xABCDEF)
		assert.Equal(t, uint64(0xABCDEF), extractBits(data, start, 24, order))
	}
}
