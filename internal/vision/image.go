package vision

import (
	"bytes"
	"image"
	"image/jpeg"
)

// clampBox converts a box to integer pixel coordinates clamped to the
// frame bounds. ok is false when the clamped box is degenerate (zero or
// negative width/height).
func clampBox(b Box, bounds image.Rectangle) (bbox [4]int, ok bool) {
	x1 := clampInt(int(b[0]), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(b[1]), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(b[2]), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(b[3]), bounds.Min.Y, bounds.Max.Y)

	if x2 <= x1 || y2 <= y1 {
		return [4]int{x1, y1, x2, y2}, false
	}
	return [4]int{x1, y1, x2, y2}, true
}

// cropPadded extracts a face crop expanded by pad pixels on every side,
// clamped to the frame. Returns the crop and the clamped (unpadded)
// bbox; ok is false for degenerate boxes.
func cropPadded(img image.Image, b Box, pad int) (crop image.Image, bbox [4]int, ok bool) {
	bounds := img.Bounds()

	bbox, ok = clampBox(b, bounds)
	if !ok {
		return nil, bbox, false
	}

	x1 := clampInt(bbox[0]-pad, bounds.Min.X, bounds.Max.X)
	y1 := clampInt(bbox[1]-pad, bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(bbox[2]+pad, bounds.Min.X, bounds.Max.X)
	y2 := clampInt(bbox[3]+pad, bounds.Min.Y, bounds.Max.Y)

	out := image.NewRGBA(image.Rect(0, 0, x2-x1, y2-y1))
	for cy := y1; cy < y2; cy++ {
		for cx := x1; cx < x2; cx++ {
			out.Set(cx-x1, cy-y1, img.At(cx, cy))
		}
	}
	return out, bbox, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// resizeImage performs nearest-neighbour resize (fast, good enough for
// model input).
func resizeImage(img image.Image, targetW, targetH int) image.Image {
	bounds := img.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))

	for y := 0; y < targetH; y++ {
		for x := 0; x < targetW; x++ {
			srcX := bounds.Min.X + x*srcW/targetW
			srcY := bounds.Min.Y + y*srcH/targetH
			dst.Set(x, y, img.At(srcX, srcY))
		}
	}

	return dst
}

// imageToFloat32CHW converts an image to CHW float32 format with
// per-channel normalization: pixel = (pixel - mean) / std.
func imageToFloat32CHW(img image.Image, targetW, targetH int, mean, std [3]float32) []float32 {
	resized := resizeImage(img, targetW, targetH)
	bounds := resized.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	data := make([]float32, 3*h*w)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := resized.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			rf := float32(r >> 8)
			gf := float32(g >> 8)
			bf := float32(b >> 8)

			idx := y*w + x
			data[0*h*w+idx] = (rf - mean[0]) / std[0]
			data[1*h*w+idx] = (gf - mean[1]) / std[1]
			data[2*h*w+idx] = (bf - mean[2]) / std[2]
		}
	}

	return data
}

// encodeJPEG encodes an image as JPEG with the given quality.
func encodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}
