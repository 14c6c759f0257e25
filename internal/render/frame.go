// Package render encodes per-tick grid snapshots as raw RGB24 frames for an
// external video encoder.
package render

import (
	"fmt"
	"io"
	"math"

	"github.com/ipd-simulator/pkg/errors"
)

// Background is the reserved color for cells without an owning organism.
// Once the partition invariant holds it never appears in a frame.
var Background = [3]byte{12, 12, 16}

// FrameRenderer turns the per-cell organism-size view into row-major RGB24
// frames, one frame per tick. Colors index organism size on a log ramp from
// cool (unicellular) to warm (grid-spanning).
type FrameRenderer struct {
	width  int
	height int
	buf    []byte

	// logMax normalizes the size ramp; generation == width*height maps to
	// the warm end.
	logMax float64
}

// NewFrameRenderer creates a renderer for a width x height grid.
func NewFrameRenderer(width, height int) (*FrameRenderer, error) {
	if width < 1 || height < 1 {
		return nil, errors.Newf(errors.CodeConfigInvalid, "frame dimensions %dx%d must be >= 1x1", width, height)
	}
	logMax := math.Log(float64(width * height))
	if logMax <= 0 {
		logMax = 1
	}
	return &FrameRenderer{
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
		logMax: logMax,
	}, nil
}

// Encode renders one frame from the per-cell organism sizes. The returned
// slice is reused by the next Encode call.
func (r *FrameRenderer) Encode(generations []uint32) ([]byte, error) {
	if len(generations) != r.width*r.height {
		return nil, errors.Newf(errors.CodeRenderError,
			"generation view has %d cells, frame needs %d", len(generations), r.width*r.height)
	}
	for i, gen := range generations {
		c := r.colorForSize(gen)
		copy(r.buf[i*3:], c[:])
	}
	return r.buf, nil
}

// EncodeTo renders one frame and writes it to w.
func (r *FrameRenderer) EncodeTo(w io.Writer, generations []uint32) error {
	frame, err := r.Encode(generations)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return errors.Wrap(errors.CodeRenderError, "write frame", err)
	}
	return nil
}

// FrameSize returns the byte length of one frame.
func (r *FrameRenderer) FrameSize() int {
	return r.width * r.height * 3
}

// colorForSize maps an organism size to its color: hue runs from 220 (cool)
// for unicellular down to 0 (warm) as the log-size approaches the whole grid.
func (r *FrameRenderer) colorForSize(gen uint32) [3]byte {
	if gen == 0 {
		return Background
	}
	t := math.Log(float64(gen)) / r.logMax
	if t > 1 {
		t = 1
	}
	return hsvToRGB(220*(1-t), 0.8, 0.92)
}

// hsvToRGB converts hue [0,360), saturation and value [0,1] to RGB24.
func hsvToRGB(h, s, v float64) [3]byte {
	c := v * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var rf, gf, bf float64
	switch {
	case hp < 1:
		rf, gf, bf = c, x, 0
	case hp < 2:
		rf, gf, bf = x, c, 0
	case hp < 3:
		rf, gf, bf = 0, c, x
	case hp < 4:
		rf, gf, bf = 0, x, c
	case hp < 5:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	m := v - c
	return [3]byte{
		byte((rf + m) * 255),
		byte((gf + m) * 255),
		byte((bf + m) * 255),
	}
}

// FFmpegCommand returns the encoder invocation that consumes the raw frame
// stream written by EncodeTo.
func FFmpegCommand(framePath string, width, height, fps int) string {
	return fmt.Sprintf(
		"ffmpeg -f rawvideo -pixel_format rgb24 -video_size %dx%d -framerate %d -i %s -c:v libx264 -pix_fmt yuv420p out.mp4",
		width, height, fps, framePath)
}
