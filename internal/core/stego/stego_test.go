package stego

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func carrierPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 7),
				G: uint8(y * 13),
				B: uint8((x + y) * 3),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestEmbedExtract_RoundTrip(t *testing.T) {
	carrier := carrierPNG(t, 64, 64)

	texts := []string{
		"username:alice,views:5",
		"",
		"unicode: žluťoučký kůň 🐎",
	}
	for _, text := range texts {
		out, err := Embed(carrier, text)
		require.NoError(t, err)

		got, err := Extract(out)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestEmbed_Deterministic(t *testing.T) {
	carrier := carrierPNG(t, 32, 32)

	a, err := Embed(carrier, "same input")
	require.NoError(t, err)
	b, err := Embed(carrier, "same input")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEmbed_TextTooLarge(t *testing.T) {
	// 4x4 image holds 48 bits; the 32-bit header alone leaves room for two
	// characters.
	carrier := carrierPNG(t, 4, 4)

	_, err := Embed(carrier, "this will not fit")
	assert.ErrorIs(t, err, ErrPayloadTooSmall)

	_, err = Embed(carrier, "xy")
	assert.NoError(t, err)
}

func TestEmbed_InvalidImage(t *testing.T) {
	_, err := Embed([]byte("definitely not an image"), "text")
	assert.Error(t, err)
}

func TestExtract_UnembeddedImage(t *testing.T) {
	// A plain image's low bits decode to a length that exceeds capacity with
	// overwhelming probability.
	carrier := carrierPNG(t, 16, 16)

	_, err := Extract(carrier)
	assert.Error(t, err)
}

func TestEmbed_PreservesAlpha(t *testing.T) {
	carrier := carrierPNG(t, 16, 16)

	out, err := Embed(carrier, "alpha check")
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			require.Equal(t, uint32(0xffff), a)
		}
	}
}
