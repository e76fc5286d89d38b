// Package frame provides video and audio frame types plus the bounded frame
// queue that decouples the engine's frame delivery thread from a consumer.
package frame

import (
	"fmt"
)

// PixelFormat represents the pixel format of a video frame.
type PixelFormat int

const (
	// PixelFormatI420 is the standard YUV 4:2:0 planar format: Y plane
	// followed by quarter-size U and V planes.
	PixelFormatI420 PixelFormat = iota

	// PixelFormatNV12 is YUV 4:2:0 semi-planar: Y plane followed by an
	// interleaved UV plane at half the row count.
	PixelFormatNV12

	// PixelFormatRGBA is packed 32-bit RGBA.
	PixelFormatRGBA
)

// String returns the string representation of the pixel format.
func (f PixelFormat) String() string {
	switch f {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for the format.
func (f PixelFormat) PlaneCount() int {
	switch f {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	default:
		return 1
	}
}

// VideoFrame is a single video frame. Planes may carry row padding: each
// plane's stride is the byte distance between rows and may exceed the
// logical row width.
type VideoFrame struct {
	Width  int
	Height int
	Format PixelFormat

	// Planes holds one slice per plane, Stride the bytes-per-row of each.
	Planes [][]byte
	Stride []int

	// TimestampUs is the capture/presentation timestamp in microseconds.
	TimestampUs int64
}

// planeRows returns the number of pixel rows plane i occupies.
func planeRows(format PixelFormat, plane, height int) int {
	switch format {
	case PixelFormatI420, PixelFormatNV12:
		if plane == 0 {
			return height
		}
		return (height + 1) / 2
	default:
		return height
	}
}

// planeRowBytes returns the logical (unpadded) byte width of a row in plane i.
func planeRowBytes(format PixelFormat, plane, width int) int {
	switch format {
	case PixelFormatI420:
		if plane == 0 {
			return width
		}
		return (width + 1) / 2
	case PixelFormatNV12:
		// UV rows are interleaved, so they span the full width.
		return width
	case PixelFormatRGBA:
		return width * 4
	default:
		return width
	}
}

// Validate checks that the frame's declared geometry is internally
// consistent. A frame failing validation indicates a caller or engine
// contract violation, not a recoverable condition.
func (f *VideoFrame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", f.Width, f.Height)
	}
	n := f.Format.PlaneCount()
	if len(f.Planes) < n || len(f.Stride) < n {
		return fmt.Errorf("%s frame needs %d planes, got %d planes / %d strides",
			f.Format, n, len(f.Planes), len(f.Stride))
	}
	for i := 0; i < n; i++ {
		rowBytes := planeRowBytes(f.Format, i, f.Width)
		if f.Stride[i] < rowBytes {
			return fmt.Errorf("plane %d stride %d below row width %d", i, f.Stride[i], rowBytes)
		}
		rows := planeRows(f.Format, i, f.Height)
		// The last row only needs the logical width, not the full stride.
		need := f.Stride[i]*(rows-1) + rowBytes
		if len(f.Planes[i]) < need {
			return fmt.Errorf("plane %d holds %d bytes, need %d", i, len(f.Planes[i]), need)
		}
	}
	return nil
}

// StorageSize returns the byte size needed to hold the frame tightly packed:
// the sum over planes of rowBytes*rows for planar formats, stride*height for
// packed ones.
func (f *VideoFrame) StorageSize() int {
	total := 0
	for i := 0; i < f.Format.PlaneCount(); i++ {
		total += planeRowBytes(f.Format, i, f.Width) * planeRows(f.Format, i, f.Height)
	}
	return total
}

// NewI420Frame allocates an I420 frame with tightly packed planes.
func NewI420Frame(width, height int) *VideoFrame {
	ySize := width * height
	uvWidth := (width + 1) / 2
	uvHeight := (height + 1) / 2
	uvSize := uvWidth * uvHeight

	return &VideoFrame{
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
		Planes: [][]byte{
			make([]byte, ySize),
			make([]byte, uvSize),
			make([]byte, uvSize),
		},
		Stride: []int{width, uvWidth, uvWidth},
	}
}

// copyPlane copies rows*rowBytes of pixel data from src to dst, honoring the
// two strides independently. Destination padding beyond rowBytes is left
// untouched.
func copyPlane(dst []byte, dstStride int, src []byte, srcStride, rowBytes, rows int) {
	if srcStride == dstStride && srcStride == rowBytes {
		copy(dst[:rowBytes*rows], src)
		return
	}
	for r := 0; r < rows; r++ {
		copy(dst[r*dstStride:r*dstStride+rowBytes], src[r*srcStride:r*srcStride+rowBytes])
	}
}
