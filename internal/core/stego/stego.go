// Package stego implements the task transform: least-significant-bit text
// embedding in images. Both functions are pure and CPU-bound; Extract inverts
// Embed whenever Embed succeeded.
//
// The embedded stream is a 4-byte big-endian length followed by the UTF-8
// text, written MSB-first into the low bit of the R, G and B channels of
// successive pixels. Alpha is left untouched so fully opaque images stay
// opaque.
package stego

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	_ "image/jpeg"
)

var (
	ErrPayloadTooSmall = errors.New("image too small for this text")
	ErrNoEmbeddedText  = errors.New("image carries no embedded text")
)

// channelsPerPixel is the number of usable bit carriers per pixel (R, G, B).
const channelsPerPixel = 3

// Embed hides text inside the image and returns the carrier as PNG bytes.
func Embed(imageBytes []byte, text string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode carrier image: %w", err)
	}

	bounds := img.Bounds()
	carrier := image.NewNRGBA(bounds)
	draw.Draw(carrier, bounds, img, bounds.Min, draw.Src)

	data := make([]byte, 4+len(text))
	binary.BigEndian.PutUint32(data[:4], uint32(len(text)))
	copy(data[4:], text)

	availableBits := bounds.Dx() * bounds.Dy() * channelsPerPixel
	requiredBits := len(data) * 8
	if requiredBits > availableBits {
		return nil, fmt.Errorf("%w: need %d bits, have %d", ErrPayloadTooSmall, requiredBits, availableBits)
	}

	writeBits(carrier.Pix, data)

	var out bytes.Buffer
	if err := png.Encode(&out, carrier); err != nil {
		return nil, fmt.Errorf("encode carrier image: %w", err)
	}
	return out.Bytes(), nil
}

// Extract recovers the text embedded by Embed.
func Extract(carrierBytes []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(carrierBytes))
	if err != nil {
		return "", fmt.Errorf("decode carrier image: %w", err)
	}

	bounds := img.Bounds()
	carrier := image.NewNRGBA(bounds)
	draw.Draw(carrier, bounds, img, bounds.Min, draw.Src)

	availableBits := bounds.Dx() * bounds.Dy() * channelsPerPixel

	header := make([]byte, 4)
	if err := readBits(carrier.Pix, header, 0); err != nil {
		return "", err
	}
	length := binary.BigEndian.Uint32(header)

	if int(length)*8+32 > availableBits {
		return "", fmt.Errorf("%w: declared length %d exceeds capacity", ErrNoEmbeddedText, length)
	}

	text := make([]byte, length)
	if err := readBits(carrier.Pix, text, 32); err != nil {
		return "", err
	}
	return string(text), nil
}

// writeBits spreads data MSB-first across the low bit of the R, G, B bytes of
// pix, which is NRGBA-interleaved.
func writeBits(pix []byte, data []byte) {
	bit := 0
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			pixelIndex := bit / channelsPerPixel
			channel := bit % channelsPerPixel
			offset := pixelIndex*4 + channel
			pix[offset] = pix[offset]&0xFE | (b >> i & 1)
			bit++
		}
	}
}

// readBits fills out from the low bits of pix, starting bitOffset bits into
// the embedded stream.
func readBits(pix []byte, out []byte, bitOffset int) error {
	bit := bitOffset
	for i := range out {
		var b byte
		for j := 0; j < 8; j++ {
			pixelIndex := bit / channelsPerPixel
			channel := bit % channelsPerPixel
			offset := pixelIndex*4 + channel
			if offset >= len(pix) {
				return ErrNoEmbeddedText
			}
			b = b<<1 | pix[offset]&1
			bit++
		}
		out[i] = b
	}
	return nil
}
