// internal/media/image.go
package media

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"os"

	"github.com/nfnt/resize"

	"adreel/internal/common/errors"
)

// blurPasses approximates a wide Gaussian blur with repeated box blurs.
// Three passes of radius 30 are close to the sigma-30 Gaussian the background
// fill is meant to have.
const (
	blurPasses = 3
	blurRadius = 30
)

// ConvertVerticalSafe letterboxes an arbitrary product image into a vertical
// frame: the image stretched to fill the frame and heavily blurred as
// background, with the original fitted inside untouched and centered.
func ConvertVerticalSafe(inputPath, outputPath string, width, height int) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return errors.NewFileNotFoundError(inputPath)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return errors.NewValidationFailedError(fmt.Sprintf("%s is not a decodable image: %v", inputPath, err))
	}

	background := resize.Resize(uint(width), uint(height), src, resize.Lanczos3)
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), background, background.Bounds().Min, draw.Src)
	boxBlur(canvas, blurRadius, blurPasses)

	srcBounds := src.Bounds()
	scale := fitScale(srcBounds.Dx(), srcBounds.Dy(), width, height)
	fgWidth := int(float64(srcBounds.Dx()) * scale)
	fgHeight := int(float64(srcBounds.Dy()) * scale)
	foreground := resize.Resize(uint(fgWidth), uint(fgHeight), src, resize.Lanczos3)

	offset := image.Pt((width-fgWidth)/2, (height-fgHeight)/2)
	fgRect := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(fgWidth, fgHeight))}
	draw.Draw(canvas, fgRect, foreground, foreground.Bounds().Min, draw.Over)

	out, err := os.Create(outputPath)
	if err != nil {
		return errors.NewMediaToolFailedError("image-convert", err)
	}
	defer out.Close()

	if err := png.Encode(out, canvas); err != nil {
		return errors.NewMediaToolFailedError("image-convert", err)
	}
	return nil
}

// fitScale returns the contain scale factor: the largest scale at which the
// source still fits entirely inside the target.
func fitScale(srcW, srcH, dstW, dstH int) float64 {
	scaleW := float64(dstW) / float64(srcW)
	scaleH := float64(dstH) / float64(srcH)
	if scaleW < scaleH {
		return scaleW
	}
	return scaleH
}

// boxBlur blurs img in place using running-sum box blurs, horizontal then
// vertical per pass, so cost stays linear in pixel count.
func boxBlur(img *image.RGBA, radius, passes int) {
	if radius < 1 {
		return
	}
	for i := 0; i < passes; i++ {
		blurHorizontal(img, radius)
		blurVertical(img, radius)
	}
}

func blurHorizontal(img *image.RGBA, radius int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	window := 2*radius + 1
	row := make([]uint8, w*4)

	for y := 0; y < h; y++ {
		var sumR, sumG, sumB, sumA int
		for x := -radius; x <= radius; x++ {
			r, g, b, a := pixelAt(img, clamp(x, w), y)
			sumR += r
			sumG += g
			sumB += b
			sumA += a
		}

		for x := 0; x < w; x++ {
			row[x*4] = uint8(sumR / window)
			row[x*4+1] = uint8(sumG / window)
			row[x*4+2] = uint8(sumB / window)
			row[x*4+3] = uint8(sumA / window)

			outR, outG, outB, outA := pixelAt(img, clamp(x-radius, w), y)
			inR, inG, inB, inA := pixelAt(img, clamp(x+radius+1, w), y)
			sumR += inR - outR
			sumG += inG - outG
			sumB += inB - outB
			sumA += inA - outA
		}

		copy(img.Pix[img.PixOffset(bounds.Min.X, bounds.Min.Y+y):], row)
	}
}

func blurVertical(img *image.RGBA, radius int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	window := 2*radius + 1
	col := make([]uint8, h*4)

	for x := 0; x < w; x++ {
		var sumR, sumG, sumB, sumA int
		for y := -radius; y <= radius; y++ {
			r, g, b, a := pixelAt(img, x, clamp(y, h))
			sumR += r
			sumG += g
			sumB += b
			sumA += a
		}

		for y := 0; y < h; y++ {
			col[y*4] = uint8(sumR / window)
			col[y*4+1] = uint8(sumG / window)
			col[y*4+2] = uint8(sumB / window)
			col[y*4+3] = uint8(sumA / window)

			outR, outG, outB, outA := pixelAt(img, x, clamp(y-radius, h))
			inR, inG, inB, inA := pixelAt(img, x, clamp(y+radius+1, h))
			sumR += inR - outR
			sumG += inG - outG
			sumB += inB - outB
			sumA += inA - outA
		}

		for y := 0; y < h; y++ {
			offset := img.PixOffset(bounds.Min.X+x, bounds.Min.Y+y)
			copy(img.Pix[offset:offset+4], col[y*4:y*4+4])
		}
	}
}

func pixelAt(img *image.RGBA, x, y int) (int, int, int, int) {
	offset := img.PixOffset(img.Bounds().Min.X+x, img.Bounds().Min.Y+y)
	return int(img.Pix[offset]), int(img.Pix[offset+1]), int(img.Pix[offset+2]), int(img.Pix[offset+3])
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v >= max {
		return max - 1
	}
	return v
}
