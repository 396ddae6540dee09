package schema

// Bit level packing of raw signal values into message payloads.
// Little endian (Intel) signals grow from the start bit upwards,
// big endian (Motorola) signals use the usual sawtooth numbering
// where the start bit is the MSB and bit 7 of byte 0 is bit 7.

func extractBits(data []byte, start uint16, length uint8, order ByteOrder) uint64 {
	var raw uint64
	if order == LittleEndian {
		for i := 0; i < int(length); i++ {
			pos := int(start) + i
			byteIdx := pos / 8
			bitIdx := pos % 8
			if byteIdx >= len(data) {
				break
			}
			bit := uint64(data[byteIdx]>>bitIdx) & 1
			raw |= bit << i
		}
		return raw
	}
	pos := int(start)
	for i := 0; i < int(length); i++ {
		byteIdx := pos / 8
		bitIdx := pos % 8
		if byteIdx >= len(data) {
			break
		}
		bit := uint64(data[byteIdx]>>bitIdx) & 1
		raw = raw<<1 | bit
		if bitIdx == 0 {
			pos += 15
		} else {
			pos--
		}
	}
	return raw
}

func insertBits(data []byte, start uint16, length uint8, order ByteOrder, raw uint64) {
	if order == LittleEndian {
		for i := 0; i < int(length); i++ {
			pos := int(start) + i
			byteIdx := pos / 8
			bitIdx := pos % 8
			if byteIdx >= len(data) {
				break
			}
			bit := uint8(raw>>i) & 1
			data[byteIdx] = data[byteIdx]&^(1<<bitIdx) | bit<<bitIdx
		}
		return
	}
	pos := int(start)
	for i := 0; i < int(length); i++ {
		byteIdx := pos / 8
		bitIdx := pos % 8
		if byteIdx >= len(data) {
			break
		}
		// Bits are written MSB first for Motorola signals
		bit := uint8(raw>>(int(length)-1-i)) & 1
		data[byteIdx] = data[byteIdx]&^(1<<bitIdx) | bit<<bitIdx
		if bitIdx == 0 {
			pos += 15
		} else {
			pos--
		}
	}
}
