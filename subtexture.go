package terrastream

import (
	"image"

	"github.com/b1naryth1ef/terrastream/codec"
	"github.com/b1naryth1ef/terrastream/gpu"
)

type TextureKind int

const (
	TextureColor TextureKind = iota
	TextureMask
	TextureHeight
	TextureAvailability
)

// Subtexture is one downloaded image: a colour texture, a mask, a height
// map or an availability image. Availability images are read on the CPU
// only and never uploaded.
type Subtexture struct {
	*resource

	textureKind  TextureKind
	image        image.Image
	availability *codec.Availability
	buffer       gpu.Buffer
}

func newSubtexture(node *ResourceNode, path string, kind TextureKind) *Subtexture {
	sub := &Subtexture{textureKind: kind}
	resKind := KindTexture
	if kind == TextureAvailability {
		resKind = KindAvailability
	}
	sub.resource = newResource(node, resKind, path, sub)
	return sub
}

func (s *Subtexture) parse(data []byte) (int, error) {
	if s.textureKind == TextureAvailability {
		avail, err := codec.DecodeAvailability(data)
		if err != nil {
			return 0, err
		}
		s.availability = avail
		return avail.Size(), nil
	}

	img, _, err := codec.DecodeImage(data)
	if err != nil {
		return 0, err
	}
	s.image = img
	return codec.ImageSize(img), nil
}

func (s *Subtexture) releaseCPU() {
	s.image = nil
	s.availability = nil
}

func (s *Subtexture) needsGPU() bool {
	return s.textureKind != TextureAvailability
}

func (s *Subtexture) buildGPU() (int, error) {
	buf, err := s.m.device.CreateTexture(s.image)
	if err != nil {
		return 0, err
	}
	s.buffer = buf
	return buf.Size(), nil
}

func (s *Subtexture) releaseGPU() {
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
	}
}

func (s *Subtexture) TextureKind() TextureKind {
	return s.textureKind
}

func (s *Subtexture) Image() image.Image {
	return s.image
}

func (s *Subtexture) Availability() *codec.Availability {
	return s.availability
}

func (s *Subtexture) Buffer() gpu.Buffer {
	return s.buffer
}
