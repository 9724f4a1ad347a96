// Package crc implements the CRC-8/CRC-16/CRC-32 variants used by the
// openSAFETY wire format. Each variant is provided as a bitwise calculator
// and a table-driven form; the two must agree bit-for-bit for every input,
// which is exercised in crc_test.go and crc_property_test.go.
package crc

// Poly8 is the single CRC-8 polynomial used on the wire (frames with
// payload length <= 8).
const Poly8 uint8 = 0x2F

// CRC8 is an in-progress CRC-8 accumulator, seeded by the caller; the
// frame codec seeds it with zero.
type CRC8 uint8

// UpdateBitwise runs the shift-and-XOR calculation directly from the
// polynomial, MSB-first, one bit at a time. Grounded on
// crc8ChecksumCalculator in the original oschecksum/crc.c.
func (c CRC8) UpdateBitwise(data []byte) CRC8 {
	crc := uint8(c)
	for _, b := range data {
		crc ^= b
		for k := 0; k < 8; k++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ Poly8
			} else {
				crc = crc << 1
			}
		}
	}
	return CRC8(crc)
}

// UpdateTable runs the equivalent calculation using the precomputed
// single-byte table. Grounded on crc8Checksum in the original
// oschecksum/crc.c: since the accumulator is 8 bits wide, "crc << 8" always
// truncates to zero, so the table lookup alone determines the next state.
func (c CRC8) UpdateTable(data []byte) CRC8 {
	crc := uint8(c)
	for _, b := range data {
		crc = crc8Table[b^crc]
	}
	return CRC8(crc)
}

var crc8Table = buildCRC8Table()

func buildCRC8Table() [256]uint8 {
	var table [256]uint8
	for i := 0; i < 256; i++ {
		table[i] = CRC8(0).UpdateBitwise([]byte{byte(i)})
	}
	return table
}
