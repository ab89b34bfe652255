package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// DecodeImage decodes a PNG, JPEG or WebP tile texture.
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return img, format, nil
}

// ImageSize is the number of bytes an RGBA expansion of img occupies,
// which is what both the CPU copy and the uploaded texture cost.
func ImageSize(img image.Image) int {
	b := img.Bounds()
	return b.Dx() * b.Dy() * 4
}

type AvailabilityFlags uint8

const (
	TileExists AvailabilityFlags = 0x80
	MaskAbsent AvailabilityFlags = 0x40
)

const availabilityGrid = 256

func (f AvailabilityFlags) Exists() bool {
	return f&TileExists != 0
}

func (f AvailabilityFlags) HasMask() bool {
	return f.Exists() && f&MaskAbsent == 0
}

// Availability is a bound layer metatile image: one gray pixel per tile in
// a 256x256 block, each pixel a packed AvailabilityFlags byte.
type Availability struct {
	img image.Image
}

func NewAvailability(img image.Image) *Availability {
	return &Availability{img: img}
}

func DecodeAvailability(data []byte) (*Availability, error) {
	img, _, err := DecodeImage(data)
	if err != nil {
		return nil, err
	}
	return NewAvailability(img), nil
}

// AvailabilityOrigin aligns a tile coordinate to the block its
// availability image covers.
func AvailabilityOrigin(x, y uint32) (uint32, uint32) {
	return x &^ (availabilityGrid - 1), y &^ (availabilityGrid - 1)
}

func (a *Availability) Flags(x, y uint32) AvailabilityFlags {
	b := a.img.Bounds()
	px := b.Min.X + int(x&(availabilityGrid-1))
	py := b.Min.Y + int(y&(availabilityGrid-1))
	if px >= b.Max.X || py >= b.Max.Y {
		return 0
	}
	g := color.GrayModel.Convert(a.img.At(px, py)).(color.Gray)
	return AvailabilityFlags(g.Y)
}

func (a *Availability) Size() int {
	b := a.img.Bounds()
	return b.Dx() * b.Dy()
}
