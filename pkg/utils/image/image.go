package image

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"golang.org/x/image/draw"
)

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

func DecodeJPEG(data []byte) (image.Image, error) {
	return jpeg.Decode(bytes.NewReader(data))
}

// Scale resizes src into a new RGBA image of width x height.
func Scale(src image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	return dst
}

// Grid lays images out row by row in a size x size grid of cells with the
// given cell dimensions. Missing cells stay black.
func Grid(images []image.Image, size, cellWidth, cellHeight int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size*cellWidth, size*cellHeight))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	for i, img := range images {
		if i >= size*size {
			break
		}
		x := (i % size) * cellWidth
		y := (i / size) * cellHeight
		cell := image.Rect(x, y, x+cellWidth, y+cellHeight)
		draw.ApproxBiLinear.Scale(dst, cell, img, img.Bounds(), draw.Src, nil)
	}

	return dst
}

// Pattern renders a moving gradient, used as a stand-in frame when no sensor
// is attached.
func Pattern(width, height, seq int) []byte {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Pix[y*img.Stride+x] = uint8((x + y + seq*4) & 0xff)
		}
	}
	var buf bytes.Buffer
	if err := EncodeJPEG(img, &buf, 75); err != nil {
		return nil
	}

	return buf.Bytes()
}
