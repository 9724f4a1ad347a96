package crc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC8TableMatchesBitwise(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		bitwise := CRC8(0).UpdateBitwise([]byte{b})
		table := CRC8(0).UpdateTable([]byte{b})
		assert.Equal(t, bitwise, table, "byte %#x", b)
	}
}

func TestCRC16TableMatchesBitwise(t *testing.T) {
	for _, poly := range []Poly16{Poly16BAAD, Poly16AC9A} {
		for i := 0; i < 256; i++ {
			b := byte(i)
			bitwise := CRC16(0).UpdateBitwise(poly, []byte{b})
			table := CRC16(0).UpdateTable(poly, []byte{b})
			assert.Equal(t, bitwise, table, "poly %#x byte %#x", poly, b)
		}
	}
}

func TestCRC32TableMatchesBitwise(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		bitwise := CRC32(0).UpdateBitwise([]byte{b})
		table := CRC32(0).UpdateTable([]byte{b})
		assert.Equal(t, bitwise, table, "byte %#x", b)
	}
}

func TestCRC32PNGTableMatchesBitwise(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		bitwise := ChecksumPNGBitwise([]byte{b}, 0)
		table := ChecksumPNGTable([]byte{b}, 0)
		assert.Equal(t, bitwise, table, "byte %#x", b)
	}
}

// Random-length buffers: 10 000 buffers of length in [1, 4096], checking
// the bitwise and table-driven implementations always agree.
func TestCRCRandomBuffersAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		n := 1 + rng.Intn(4096)
		buf := make([]byte, n)
		rng.Read(buf)

		assert.Equal(t, CRC8(0).UpdateBitwise(buf), CRC8(0).UpdateTable(buf))
		assert.Equal(t,
			CRC16(0).UpdateBitwise(Poly16BAAD, buf),
			CRC16(0).UpdateTable(Poly16BAAD, buf))
		assert.Equal(t,
			CRC16(0).UpdateBitwise(Poly16AC9A, buf),
			CRC16(0).UpdateTable(Poly16AC9A, buf))
		assert.Equal(t, CRC32(0).UpdateBitwise(buf), CRC32(0).UpdateTable(buf))
		assert.Equal(t, ChecksumPNGBitwise(buf, 0), ChecksumPNGTable(buf, 0))
	}
}

func TestCRCNonZeroSeedAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	buf := make([]byte, 37)
	rng.Read(buf)

	assert.Equal(t, CRC8(0x5A).UpdateBitwise(buf), CRC8(0x5A).UpdateTable(buf))
	assert.Equal(t,
		CRC16(0x1234).UpdateBitwise(Poly16BAAD, buf),
		CRC16(0x1234).UpdateTable(Poly16BAAD, buf))
	assert.Equal(t, CRC32(0xDEADBEEF).UpdateBitwise(buf), CRC32(0xDEADBEEF).UpdateTable(buf))
}
