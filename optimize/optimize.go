// Package optimize provides the image optimization processor served by
// backlogd: uploads are decoded, downscaled to a maximum width and
// re-encoded as JPEG.
package optimize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoding
	"image/jpeg"
	_ "image/png" // register PNG decoding

	"golang.org/x/image/draw"

	"github.com/xraph/backlog/id"
	"github.com/xraph/backlog/job"
)

// Defaults applied when Input leaves a field zero.
const (
	DefaultWidth   = 1600
	DefaultQuality = 82
)

// ErrUnsupportedFormat is returned for uploads that are not a decodable
// JPEG, PNG or GIF.
var ErrUnsupportedFormat = errors.New("optimize: unsupported image format")

// Input is the job payload.
type Input struct {
	Filename string
	Data     []byte

	// Width is the maximum output width in pixels. Narrower images keep
	// their size.
	Width int

	// Quality is the JPEG quality, 1 to 100.
	Quality int
}

// Output is the job result. The encoded bytes are omitted from JSON.
type Output struct {
	Filename       string `json:"filename"`
	SourceFormat   string `json:"source_format"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	OriginalBytes  int    `json:"original_bytes"`
	OptimizedBytes int    `json:"optimized_bytes"`

	data []byte
}

// Bytes returns the encoded JPEG.
func (o *Output) Bytes() []byte { return o.data }

// ContentType returns the MIME type of Bytes.
func (o *Output) ContentType() string { return "image/jpeg" }

// codedError attaches a machine-readable code to a processor failure.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }
func (e *codedError) Code() string  { return e.code }

// Processor optimizes images.
type Processor struct {
	interp draw.Interpolator
}

var _ job.Processor = (*Processor)(nil)

// New returns a Processor using Catmull-Rom resampling.
func New() *Processor {
	return &Processor{interp: draw.CatmullRom}
}

// Process implements job.Processor. payload must be an Input or *Input.
func (p *Processor) Process(ctx context.Context, payload any, _ id.JobID) (any, error) {
	var in Input
	switch v := payload.(type) {
	case Input:
		in = v
	case *Input:
		if v == nil {
			return nil, &codedError{code: "invalid_payload", err: errors.New("optimize: nil input")}
		}
		in = *v
	default:
		return nil, &codedError{code: "invalid_payload", err: fmt.Errorf("optimize: unexpected payload %T", payload)}
	}

	width := in.Width
	if width <= 0 {
		width = DefaultWidth
	}
	quality := in.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	src, format, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return nil, &codedError{code: "unsupported_format", err: fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dst := p.resize(src, width)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("optimize: encode jpeg: %w", err)
	}

	b := dst.Bounds()
	return &Output{
		Filename:       in.Filename,
		SourceFormat:   format,
		Width:          b.Dx(),
		Height:         b.Dy(),
		OriginalBytes:  len(in.Data),
		OptimizedBytes: buf.Len(),
		data:           buf.Bytes(),
	}, nil
}

// resize scales src down to maxWidth, preserving aspect ratio. Images no
// wider than maxWidth are copied onto an opaque canvas unchanged.
func (p *Processor) resize(src image.Image, maxWidth int) image.Image {
	sb := src.Bounds()
	w, h := sb.Dx(), sb.Dy()
	if w > maxWidth {
		h = h * maxWidth / w
		if h < 1 {
			h = 1
		}
		w = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == sb.Dx() && h == sb.Dy() {
		draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Over)
		return dst
	}
	p.interp.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}
