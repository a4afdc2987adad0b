package main

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/deepteams/vp8rd/internal/yuv"
)

// frameSource yields 4:2:0 frames of a fixed size.
type frameSource interface {
	Size() (width, height int)
	// FrameRate is the rate stored in the input, 0 when unknown.
	FrameRate() float64
	// Next fills f with the next frame and returns io.EOF at the end.
	Next(f *yuv.Frame) error
	Close() error
}

// openSource picks a reader from the input path: a .y4m file, a directory
// or single file of still images, or raw I420 (which needs size).
func openSource(path string, width, height int) (frameSource, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return newStillSource(path, width, height)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".y4m":
		in, err := openInput(path)
		if err != nil {
			return nil, err
		}
		s, err := newY4MSource(in)
		if err != nil {
			in.Close()
			return nil, err
		}
		return s, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return newStillSource(path, width, height)
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("raw input %s needs -size WxH", path)
	}
	in, err := openInput(path)
	if err != nil {
		return nil, err
	}
	return &rawSource{r: bufio.NewReader(in), c: in, w: width, h: height,
		buf: make([]byte, yuv.RawSize(width, height))}, nil
}

// openInput returns stdin for "-".
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

type rawSource struct {
	r    io.Reader
	c    io.Closer
	w, h int
	buf  []byte
}

func (s *rawSource) Size() (int, int)   { return s.w, s.h }
func (s *rawSource) FrameRate() float64 { return 0 }
func (s *rawSource) Close() error       { return s.c.Close() }

func (s *rawSource) Next(f *yuv.Frame) error {
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return errors.Wrap(err, "raw input: partial frame")
		}
		return err
	}
	return f.ImportRaw(s.buf)
}

// y4mSource reads YUV4MPEG2 streams with 4:2:0 chroma.
type y4mSource struct {
	rawSource
	br  *bufio.Reader
	fps float64
}

func newY4MSource(in io.ReadCloser) (*y4mSource, error) {
	r := bufio.NewReader(in)
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, errors.Wrap(err, "y4m: reading header")
	}
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "YUV4MPEG2" {
		return nil, errors.New("y4m: bad signature")
	}
	s := &y4mSource{rawSource: rawSource{r: r, c: in}, br: r}
	for _, f := range fields[1:] {
		val := f[1:]
		switch f[0] {
		case 'W':
			s.w, err = strconv.Atoi(val)
		case 'H':
			s.h, err = strconv.Atoi(val)
		case 'F':
			s.fps, err = parseRatio(val)
		case 'C':
			if !strings.HasPrefix(val, "420") {
				return nil, errors.Errorf("y4m: unsupported colorspace %s", val)
			}
		}
		if err != nil {
			return nil, errors.Wrapf(err, "y4m: header field %s", f)
		}
	}
	if s.w <= 0 || s.h <= 0 {
		return nil, errors.Errorf("y4m: missing size in header %q", strings.TrimSpace(line))
	}
	s.buf = make([]byte, yuv.RawSize(s.w, s.h))
	return s, nil
}

func parseRatio(v string) (float64, error) {
	num, den, ok := strings.Cut(v, ":")
	n, err := strconv.Atoi(num)
	if err != nil {
		return 0, err
	}
	d := 1
	if ok {
		if d, err = strconv.Atoi(den); err != nil {
			return 0, err
		}
	}
	if n <= 0 || d <= 0 {
		return 0, errors.Errorf("invalid rate %s", v)
	}
	return float64(n) / float64(d), nil
}

func (s *y4mSource) FrameRate() float64 { return s.fps }

func (s *y4mSource) Next(f *yuv.Frame) error {
	line, err := s.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return io.EOF
		}
		return errors.Wrap(err, "y4m: reading frame header")
	}
	if !strings.HasPrefix(line, "FRAME") {
		return errors.Errorf("y4m: bad frame marker %q", strings.TrimSpace(line))
	}
	return s.rawSource.Next(f)
}

// stillSource decodes a sorted list of image files, scaling each to the
// source size.
type stillSource struct {
	paths []string
	w, h  int
	next  int
	rgba  *image.RGBA
}

func newStillSource(path string, width, height int) (*stillSource, error) {
	s := &stillSource{w: width, h: height}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() {
				s.paths = append(s.paths, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(s.paths)
	} else {
		s.paths = []string{path}
	}
	if len(s.paths) == 0 {
		return nil, errors.Errorf("no images in %s", path)
	}
	if s.w <= 0 || s.h <= 0 {
		cfg, err := decodeConfig(s.paths[0])
		if err != nil {
			return nil, err
		}
		s.w, s.h = cfg.Width, cfg.Height
	}
	s.rgba = image.NewRGBA(image.Rect(0, 0, s.w, s.h))
	return s, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, errors.Wrapf(err, "decoding %s", path)
}

func (s *stillSource) Size() (int, int)   { return s.w, s.h }
func (s *stillSource) FrameRate() float64 { return 0 }
func (s *stillSource) Close() error       { return nil }

func (s *stillSource) Next(f *yuv.Frame) error {
	if s.next >= len(s.paths) {
		return io.EOF
	}
	path := s.paths[s.next]
	s.next++
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return errors.Wrapf(err, "decoding %s", path)
	}
	if yc, ok := img.(*image.YCbCr); ok && yc.SubsampleRatio == image.YCbCrSubsampleRatio420 &&
		yc.Rect.Dx() == s.w && yc.Rect.Dy() == s.h {
		return f.ImportYCbCr(yc)
	}
	xdraw.ApproxBiLinear.Scale(s.rgba, s.rgba.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return f.ImportYCbCr(toYCbCr420(s.rgba))
}

// toYCbCr420 converts with BT.601 full range; chroma is the mean of each
// 2x2 block.
func toYCbCr420(m *image.RGBA) *image.YCbCr {
	b := m.Bounds()
	out := image.NewYCbCr(b, image.YCbCrSubsampleRatio420)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := m.RGBAAt(x, y)
			yy, _, _ := color.RGBToYCbCr(c.R, c.G, c.B)
			out.Y[out.YOffset(x, y)] = yy
		}
	}
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		for x := b.Min.X; x < b.Max.X; x += 2 {
			var cb, cr, n int
			for dy := 0; dy < 2 && y+dy < b.Max.Y; dy++ {
				for dx := 0; dx < 2 && x+dx < b.Max.X; dx++ {
					c := m.RGBAAt(x+dx, y+dy)
					_, u, v := color.RGBToYCbCr(c.R, c.G, c.B)
					cb += int(u)
					cr += int(v)
					n++
				}
			}
			i := out.COffset(x, y)
			out.Cb[i] = byte((cb + n/2) / n)
			out.Cr[i] = byte((cr + n/2) / n)
		}
	}
	return out
}
