package codec

import (
	"fmt"

	"github.com/chewxy/math32"
)

// PointRecordSize is the packed size of one point: xyz float32 and rgba.
const PointRecordSize = 3*4 + 4

type PointCloud struct {
	Positions []float32
	Colors    []uint8
	Min       [3]float32
	Max       [3]float32
}

func (p *PointCloud) Len() int {
	return len(p.Positions) / 3
}

func (p *PointCloud) Size() int {
	return 4*len(p.Positions) + len(p.Colors)
}

// Diagonal is the length of the bounds diagonal.
func (p *PointCloud) Diagonal() float32 {
	var sum float32
	for i := 0; i < 3; i++ {
		d := p.Max[i] - p.Min[i]
		sum += d * d
	}
	return math32.Sqrt(sum)
}

func DecodePointCloud(data []byte) (*PointCloud, error) {
	if len(data)%PointRecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncated, len(data), PointRecordSize)
	}
	n := len(data) / PointRecordSize
	pc := &PointCloud{
		Positions: make([]float32, 0, n*3),
		Colors:    make([]uint8, 0, n*4),
	}
	r := &reader{data: data}
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			v := r.f32()
			if i == 0 {
				pc.Min[c], pc.Max[c] = v, v
			} else {
				pc.Min[c] = math32.Min(pc.Min[c], v)
				pc.Max[c] = math32.Max(pc.Max[c], v)
			}
			pc.Positions = append(pc.Positions, v)
		}
		pc.Colors = append(pc.Colors, r.take(4)...)
	}
	if r.err != nil {
		return nil, r.err
	}
	return pc, nil
}

func EncodePointCloud(pc *PointCloud) []byte {
	w := &writer{}
	for i := 0; i < pc.Len(); i++ {
		for c := 0; c < 3; c++ {
			w.f32(pc.Positions[i*3+c])
		}
		w.buf = append(w.buf, pc.Colors[i*4:i*4+4]...)
	}
	return w.buf
}
