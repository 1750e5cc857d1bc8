package mask

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sbinet/npyio"
)

// MaxPixels bounds the masks Decode accepts. npyio allocates the whole
// payload from the header shape before reading it.
const MaxPixels = 1 << 26

var (
	ErrUnsupportedShape = errors.New("unsupported mask shape")
	ErrTooLarge         = errors.New("mask too large")
)

// Mask is a row-major 2-D probability raster.
type Mask struct {
	Width  int
	Height int
	Data   []float32
}

func New(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Data: make([]float32, width*height)}
}

func (m *Mask) At(row, col int) float32 {
	return m.Data[row*m.Width+col]
}

func (m *Mask) Set(row, col int, v float32) {
	m.Data[row*m.Width+col] = v
}

// Binary is a row-major foreground/background raster.
type Binary struct {
	Width  int
	Height int
	Pix    []bool
}

func NewBinary(width, height int) *Binary {
	return &Binary{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At returns false outside the raster.
func (b *Binary) At(row, col int) bool {
	if row < 0 || col < 0 || row >= b.Height || col >= b.Width {
		return false
	}
	return b.Pix[row*b.Width+col]
}

func (b *Binary) Set(row, col int, v bool) {
	b.Pix[row*b.Width+col] = v
}

func (b *Binary) Count() int {
	n := 0
	for _, v := range b.Pix {
		if v {
			n++
		}
	}
	return n
}

// Threshold marks every value >= t as foreground.
func (m *Mask) Threshold(t float32) *Binary {
	b := NewBinary(m.Width, m.Height)
	for i, v := range m.Data {
		b.Pix[i] = v >= t
	}
	return b
}

// Decode reads a NumPy .npy array. Any numeric dtype is coerced to float32.
// 3-D arrays are accepted when one of the outer axes is a singleton channel.
func Decode(r io.Reader) (*Mask, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading npy header: %w", err)
	}

	height, width, err := planeShape(npy.Header.Descr.Shape)
	if err != nil {
		return nil, err
	}

	data, err := readFloat32(npy, npy.Header.Descr.Type)
	if err != nil {
		return nil, err
	}
	if len(data) != width*height {
		return nil, fmt.Errorf("npy payload has %d values, shape needs %d", len(data), width*height)
	}

	m := &Mask{Width: width, Height: height, Data: data}
	if npy.Header.Descr.Fortran {
		m.Data = transpose(data, width, height)
	}
	return m, nil
}

// Encode writes m as a 2-D (height, width) little endian float32 .npy
// array (format version 1.0).
func Encode(w io.Writer, m *Mask) error {
	// npyio only writes 2-D shapes for float64 matrices
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", m.Height, m.Width)
	// magic, version and length take 10 bytes; the header ends 64-byte aligned
	if pad := (10 + len(header) + 1) % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	buf := &bytes.Buffer{}
	buf.Write(npyio.Magic[:])
	buf.Write([]byte{1, 0})
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
	if err := binary.Write(buf, binary.LittleEndian, m.Data); err != nil {
		return fmt.Errorf("writing npy: %w", err)
	}

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("writing npy: %w", err)
	}
	return nil
}

func planeShape(shape []int) (height, width int, err error) {
	switch len(shape) {
	case 2:
		height, width = shape[0], shape[1]
	case 3:
		switch {
		case shape[0] == 1:
			height, width = shape[1], shape[2]
		case shape[2] == 1:
			height, width = shape[0], shape[1]
		default:
			return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedShape, shape)
		}
	default:
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedShape, shape)
	}
	if height <= 0 || width <= 0 {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnsupportedShape, shape)
	}
	// division keeps the check itself from overflowing
	if height > MaxPixels/width {
		return 0, 0, fmt.Errorf("%w: %v exceeds %d pixels", ErrTooLarge, shape, MaxPixels)
	}
	return height, width, nil
}

// column-major (fortran) payload to row-major
func transpose(data []float32, width, height int) []float32 {
	out := make([]float32, len(data))
	for col := 0; col < width; col++ {
		for row := 0; row < height; row++ {
			out[row*width+col] = data[col*height+row]
		}
	}
	return out
}

func readFloat32(r *npyio.Reader, dtype string) ([]float32, error) {
	// byte order is handled by the reader
	kind := strings.TrimLeft(dtype, "<>|=")

	switch kind {
	case "f4":
		var v []float32
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return v, nil
	case "f8":
		var v []float64
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u1":
		var v []uint8
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i1":
		var v []int8
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u2":
		var v []uint16
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i2":
		var v []int16
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u4":
		var v []uint32
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i4":
		var v []int32
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "u8":
		var v []uint64
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "i8":
		var v []int64
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return convert(v), nil
	case "b1":
		var v []bool
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		out := make([]float32, len(v))
		for i, b := range v {
			if b {
				out[i] = 1
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q", dtype)
	}
}

type number interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~float64
}

func convert[T number](in []T) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
