package entity

import "strconv"

// Channels is the number of samples per pixel in a decoded frame (RGB24).
const Channels = 3

// Frame is one decoded video frame. Index is its decode position. Frames are
// never mutated after the decoder hands them out.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pixels []byte
}

// Tensor is the transmissible form of a Frame: the rows × cols × channels
// nested numeric array, pre-encoded as JSON.
type Tensor struct {
	Index int
	Data  []byte
}

func (t Tensor) MarshalJSON() ([]byte, error) {
	return t.Data, nil
}

// NewTensor encodes f as a nested JSON array of pixel values.
func NewTensor(f Frame) Tensor {
	// each sample is at most "255," plus brackets per pixel and row
	buf := make([]byte, 0, len(f.Pixels)*4+f.Height*f.Width*2+f.Height*2+2)
	buf = append(buf, '[')
	for y := 0; y < f.Height; y++ {
		if y > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, '[')
		for x := 0; x < f.Width; x++ {
			if x > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, '[')
			off := (y*f.Width + x) * Channels
			for c := 0; c < Channels; c++ {
				if c > 0 {
					buf = append(buf, ',')
				}
				buf = strconv.AppendUint(buf, uint64(f.Pixels[off+c]), 10)
			}
			buf = append(buf, ']')
		}
		buf = append(buf, ']')
	}
	buf = append(buf, ']')
	return Tensor{Index: f.Index, Data: buf}
}
