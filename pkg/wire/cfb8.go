package wire

import "crypto/cipher"

// cfb8 is an 8-bit-segment CFB stream cipher wrapping a block
// cipher's raw Encrypt primitive. Go's standard library
// crypto/cipher only implements whole-block CFB (segment size equal
// to the block size); this historical per-byte-feedback mode, used
// by the protocol this server speaks, has no standard library or
// ecosystem implementation anywhere in this repository's dependency
// pack, so it is hand-rolled directly on crypto/aes's block
// primitive (see DESIGN.md).
type cfb8 struct {
	block        cipher.Block
	register     []byte // shift register, len == block size
	keystreamBuf []byte // scratch buffer for block.Encrypt output
	decrypting   bool
}

func newCFB8(block cipher.Block, iv []byte, decrypting bool) *cfb8 {
	bs := block.BlockSize()
	register := make([]byte, bs)
	copy(register, iv)
	return &cfb8{
		block:        block,
		register:     register,
		keystreamBuf: make([]byte, bs),
		decrypting:   decrypting,
	}
}

// XORKeyStream transforms src into dst in place (dst and src may
// overlap exactly, matching cipher.Stream's contract), advancing the
// register by exactly len(src) bytes regardless of whether this
// instance encrypts or decrypts.
func (c *cfb8) XORKeyStream(dst, src []byte) {
	for i, in := range src {
		c.block.Encrypt(c.keystreamBuf, c.register)
		out := in ^ c.keystreamBuf[0]

		var fedBack byte
		if c.decrypting {
			fedBack = in
		} else {
			fedBack = out
		}
		copy(c.register, c.register[1:])
		c.register[len(c.register)-1] = fedBack

		dst[i] = out
	}
}
