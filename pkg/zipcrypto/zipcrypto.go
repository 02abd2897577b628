// Package zipcrypto implements the traditional PKZIP stream cipher
// used by legacy password-protected zip entries.
//
// The cipher keys evolve through a CRC-32 primitive and a linear
// congruential update. Known plaintext attacks exist against it, so it
// offers no real confidentiality; it is implemented here to read the
// many archives in the wild that still use it.
package zipcrypto

import "hash/crc32"

// HeaderSize is the length of the password check header that precedes
// every encrypted payload. The first eleven bytes are random; the
// twelfth verifies the password.
const HeaderSize = 12

// Initial key values mandated by the format.
const (
	key0Init = 0x12345678
	key1Init = 0x23456789
	key2Init = 0x34567890
)

// crcTable is the standard CRC-32 byte table (polynomial 0xEDB88320),
// the same table the container format already uses for checksums.
var crcTable = crc32.MakeTable(crc32.IEEE)

// crcStep advances a CRC-32 accumulator by one byte.
func crcStep(crc uint32, b byte) uint32 {
	return (crc >> 8) ^ crcTable[byte(crc)^b]
}

// keys is the three-word cipher state. The keystream depends on every
// plaintext byte seen so far, so state cannot be shared or rewound; a
// fresh instance must be seeded for every entry.
type keys struct {
	key0, key1, key2 uint32
}

func (k *keys) seed(password []byte) {
	k.key0, k.key1, k.key2 = key0Init, key1Init, key2Init
	for _, c := range password {
		k.update(c)
	}
}

// update folds one plaintext byte into the key state.
func (k *keys) update(c byte) {
	k.key0 = crcStep(k.key0, c)
	k.key1 = (k.key1+(k.key0&0xff))*134775813 + 1
	k.key2 = crcStep(k.key2, byte(k.key1>>24))
}

// streamByte derives the next keystream byte from the current state.
func (k *keys) streamByte() byte {
	t := k.key2 | 2
	return byte((t * (t ^ 1)) >> 8)
}

// Decrypter is the decrypting cipher state machine.
type Decrypter struct {
	keys
}

// NewDecrypter returns a Decrypter seeded with password.
func NewDecrypter(password []byte) *Decrypter {
	d := &Decrypter{}
	d.seed(password)
	return d
}

// DecryptByte decrypts a single cipher byte. The keystream byte is
// applied before the keys are updated with the recovered plaintext;
// that ordering is part of the format.
func (d *Decrypter) DecryptByte(c byte) byte {
	c ^= d.streamByte()
	d.update(c)
	return c
}

// Decrypt decrypts p in place.
func (d *Decrypter) Decrypt(p []byte) {
	for i, c := range p {
		p[i] = d.DecryptByte(c)
	}
}

// DecryptHeader decrypts the 12-byte password check header in place
// and reports whether its final byte matches check. A mismatch means
// the password is wrong (or, for roughly 1 in 256 wrong passwords, a
// false accept: the check byte is all the verification the format
// offers).
func (d *Decrypter) DecryptHeader(header []byte, check byte) bool {
	d.Decrypt(header)
	return header[len(header)-1] == check
}

// Encrypter is the encrypting counterpart. The key schedule is
// identical: keys are always fed the plaintext byte, which the
// encrypting side holds before the XOR and the decrypting side after.
type Encrypter struct {
	keys
}

// NewEncrypter returns an Encrypter seeded with password.
func NewEncrypter(password []byte) *Encrypter {
	e := &Encrypter{}
	e.seed(password)
	return e
}

// EncryptByte encrypts a single plaintext byte.
func (e *Encrypter) EncryptByte(c byte) byte {
	out := c ^ e.streamByte()
	e.update(c)
	return out
}

// Encrypt encrypts p in place.
func (e *Encrypter) Encrypt(p []byte) {
	for i, c := range p {
		p[i] = e.EncryptByte(c)
	}
}
