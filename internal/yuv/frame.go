// Package yuv holds planar 4:2:0 frames with extended borders, the buffer
// format shared by the source, the reconstruction and the reference frames.
package yuv

import (
	"image"

	"github.com/pkg/errors"

	"github.com/deepteams/vp8rd/internal/pool"
)

// Border is the number of pixels replicated around the luma plane so that
// motion vectors may point outside the visible picture. Chroma planes carry
// half of it.
const Border = 32

// ErrFrameSize is returned for frames with non-positive dimensions.
var ErrFrameSize = errors.New("yuv: invalid frame size")

// Frame is a planar YUV 4:2:0 picture whose dimensions are padded to whole
// macroblocks and surrounded by a Border-pixel apron.
type Frame struct {
	Width, Height  int // visible size
	AlignedWidth   int // multiple of 16
	AlignedHeight  int
	MBCols, MBRows int
	YStride        int
	UVStride       int
	Y, U, V        []byte // whole planes including borders
	yOrigin        int
	uvOrigin       int
	slab           []byte
}

// NewFrame allocates a frame. Buffers come from the shared pool and are
// returned with Release.
func NewFrame(width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrFrameSize, "%dx%d", width, height)
	}
	f := &Frame{Width: width, Height: height}
	f.MBCols = (width + 15) >> 4
	f.MBRows = (height + 15) >> 4
	f.AlignedWidth = f.MBCols * 16
	f.AlignedHeight = f.MBRows * 16
	f.YStride = f.AlignedWidth + 2*Border
	f.UVStride = f.AlignedWidth/2 + Border
	ySize := f.YStride * (f.AlignedHeight + 2*Border)
	uvSize := f.UVStride * (f.AlignedHeight/2 + Border)

	f.slab = pool.Get(ySize + 2*uvSize)
	clear(f.slab)
	f.Y = f.slab[:ySize]
	f.U = f.slab[ySize : ySize+uvSize]
	f.V = f.slab[ySize+uvSize : ySize+2*uvSize]
	f.yOrigin = Border*f.YStride + Border
	f.uvOrigin = (Border/2)*f.UVStride + Border/2
	return f, nil
}

// Release returns the frame's buffers to the pool. The frame must not be
// used afterwards.
func (f *Frame) Release() {
	if f.slab != nil {
		pool.Put(f.slab)
		f.slab, f.Y, f.U, f.V = nil, nil, nil, nil
	}
}

// YOff returns the index of luma pixel (x, y); negative coordinates down to
// -Border address the apron.
func (f *Frame) YOff(x, y int) int { return f.yOrigin + y*f.YStride + x }

// UVOff returns the index of chroma pixel (x, y) in U or V.
func (f *Frame) UVOff(x, y int) int { return f.uvOrigin + y*f.UVStride + x }

// MBYOff returns the luma index of the top-left pixel of macroblock (col, row).
func (f *Frame) MBYOff(col, row int) int { return f.YOff(col*16, row*16) }

// MBUVOff returns the chroma index of the top-left pixel of macroblock (col, row).
func (f *Frame) MBUVOff(col, row int) int { return f.UVOff(col*8, row*8) }

// CopyFrom copies the visible and padded area of src into f. Both frames
// must have the same dimensions.
func (f *Frame) CopyFrom(src *Frame) {
	copy(f.slab[:len(f.Y)+len(f.U)+len(f.V)], src.slab[:len(src.Y)+len(src.U)+len(src.V)])
}

// ExtendBorders replicates the outermost aligned pixels into the apron.
func (f *Frame) ExtendBorders() {
	extendPlane(f.Y, f.yOrigin, f.YStride, f.AlignedWidth, f.AlignedHeight, Border)
	extendPlane(f.U, f.uvOrigin, f.UVStride, f.AlignedWidth/2, f.AlignedHeight/2, Border/2)
	extendPlane(f.V, f.uvOrigin, f.UVStride, f.AlignedWidth/2, f.AlignedHeight/2, Border/2)
}

func extendPlane(p []byte, origin, stride, w, h, border int) {
	for y := 0; y < h; y++ {
		row := origin + y*stride
		l, r := p[row], p[row+w-1]
		for x := 1; x <= border; x++ {
			p[row-x] = l
			p[row+w-1+x] = r
		}
	}
	top := origin - border
	bottom := origin + (h-1)*stride - border
	for y := 1; y <= border; y++ {
		copy(p[top-y*stride:top-y*stride+stride], p[top:top+stride])
		copy(p[bottom+y*stride:bottom+y*stride+stride], p[bottom:bottom+stride])
	}
}

// PadToAligned replicates the last visible column and row out to the
// macroblock-aligned size.
func (f *Frame) PadToAligned() {
	padPlane(f.Y, f.yOrigin, f.YStride, f.Width, f.Height, f.AlignedWidth, f.AlignedHeight)
	cw, ch := (f.Width+1)>>1, (f.Height+1)>>1
	padPlane(f.U, f.uvOrigin, f.UVStride, cw, ch, f.AlignedWidth/2, f.AlignedHeight/2)
	padPlane(f.V, f.uvOrigin, f.UVStride, cw, ch, f.AlignedWidth/2, f.AlignedHeight/2)
}

func padPlane(p []byte, origin, stride, w, h, aw, ah int) {
	for y := 0; y < h; y++ {
		row := origin + y*stride
		for x := w; x < aw; x++ {
			p[row+x] = p[row+w-1]
		}
	}
	last := origin + (h-1)*stride
	for y := h; y < ah; y++ {
		copy(p[origin+y*stride:origin+y*stride+aw], p[last:last+aw])
	}
}

// ImportYCbCr copies a 4:2:0 image into f, replicating edge pixels out to
// macroblock boundaries and extending the borders.
func (f *Frame) ImportYCbCr(img *image.YCbCr) error {
	if img.SubsampleRatio != image.YCbCrSubsampleRatio420 {
		return errors.Errorf("yuv: unsupported subsampling %v", img.SubsampleRatio)
	}
	b := img.Rect
	if b.Dx() != f.Width || b.Dy() != f.Height {
		return errors.Wrapf(ErrFrameSize, "image %dx%d into frame %dx%d", b.Dx(), b.Dy(), f.Width, f.Height)
	}
	for y := 0; y < f.Height; y++ {
		src := img.YOffset(b.Min.X, b.Min.Y+y)
		copy(f.Y[f.YOff(0, y):f.YOff(f.Width, y)], img.Y[src:src+f.Width])
	}
	cw, ch := (f.Width+1)>>1, (f.Height+1)>>1
	for y := 0; y < ch; y++ {
		src := img.COffset(b.Min.X, b.Min.Y+2*y)
		copy(f.U[f.UVOff(0, y):f.UVOff(cw, y)], img.Cb[src:src+cw])
		copy(f.V[f.UVOff(0, y):f.UVOff(cw, y)], img.Cr[src:src+cw])
	}
	f.PadToAligned()
	f.ExtendBorders()
	return nil
}

// ImportRaw reads a tightly packed I420 buffer (Y, then U, then V planes).
func (f *Frame) ImportRaw(data []byte) error {
	cw, ch := (f.Width+1)>>1, (f.Height+1)>>1
	want := f.Width*f.Height + 2*cw*ch
	if len(data) < want {
		return errors.Wrapf(ErrFrameSize, "raw frame has %d bytes, want %d", len(data), want)
	}
	for y := 0; y < f.Height; y++ {
		copy(f.Y[f.YOff(0, y):f.YOff(f.Width, y)], data[y*f.Width:])
	}
	u := data[f.Width*f.Height:]
	v := u[cw*ch:]
	for y := 0; y < ch; y++ {
		copy(f.U[f.UVOff(0, y):f.UVOff(cw, y)], u[y*cw:])
		copy(f.V[f.UVOff(0, y):f.UVOff(cw, y)], v[y*cw:])
	}
	f.PadToAligned()
	f.ExtendBorders()
	return nil
}

// RawSize returns the byte size of one I420 frame of the given dimensions.
func RawSize(width, height int) int {
	cw, ch := (width+1)>>1, (height+1)>>1
	return width*height + 2*cw*ch
}

// AppendRaw appends the visible area of f to dst as tightly packed I420.
func (f *Frame) AppendRaw(dst []byte) []byte {
	for y := 0; y < f.Height; y++ {
		dst = append(dst, f.Y[f.YOff(0, y):f.YOff(f.Width, y)]...)
	}
	cw, ch := (f.Width+1)>>1, (f.Height+1)>>1
	for _, p := range [2][]byte{f.U, f.V} {
		for y := 0; y < ch; y++ {
			dst = append(dst, p[f.UVOff(0, y):f.UVOff(cw, y)]...)
		}
	}
	return dst
}
