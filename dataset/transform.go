package dataset

import (
	"image"
	"math/rand"

	"golang.org/x/image/draw"
)

// ImageNet channel statistics used for normalisation.
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// Transform resizes an image to Resize×Resize, crops Crop×Crop out of it and
// normalises the result into CHW float32 values. Train transforms flip
// horizontally and crop at random; eval transforms take the center crop.
type Transform struct {
	Resize int
	Crop   int
	Train  bool
	Mean   [3]float32
	Std    [3]float32
}

// NewTransform returns a transform with the default normalisation.
func NewTransform(resize, crop int, train bool) Transform {
	return Transform{Resize: resize, Crop: crop, Train: train, Mean: DefaultMean, Std: DefaultStd}
}

// Shape is the CHW shape of Apply's output.
func (t Transform) Shape() []int {
	return []int{3, t.Crop, t.Crop}
}

func (t Transform) Apply(img image.Image, rng *rand.Rand) []float32 {
	resized := t.resize(img)

	x0, y0 := (t.Resize-t.Crop)/2, (t.Resize-t.Crop)/2
	flip := false
	if t.Train && rng != nil {
		x0 = rng.Intn(t.Resize - t.Crop + 1)
		y0 = rng.Intn(t.Resize - t.Crop + 1)
		flip = rng.Intn(2) == 1
	}

	plane := t.Crop * t.Crop
	out := make([]float32, 3*plane)
	for y := 0; y < t.Crop; y++ {
		for x := 0; x < t.Crop; x++ {
			sx := x0 + x
			if flip {
				sx = x0 + t.Crop - 1 - x
			}
			off := resized.PixOffset(sx, y0+y)
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[off+c]) / 255.0
				out[c*plane+y*t.Crop+x] = (v - t.Mean[c]) / t.Std[c]
			}
		}
	}
	return out
}

func (t Transform) resize(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && b.Dx() == t.Resize && b.Dy() == t.Resize {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, t.Resize, t.Resize))
	if b.Dx() == t.Resize && b.Dy() == t.Resize {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
