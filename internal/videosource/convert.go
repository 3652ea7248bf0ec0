// convert.go: YCbCr to interleaved BGR conversion with a cached plan.
package videosource

import (
	"image"
)

// Frame is one decoded video frame in canonical interleaved BGR order, the
// layout the detector consumes directly.
type Frame struct {
	Width  int
	Height int
	Stride int // bytes per row, always Width*3
	Pixels []byte
}

// planKey identifies the geometry a conversion plan was built for. A new plan
// is computed only when the incoming frame no longer matches the key.
type planKey struct {
	width     int
	height    int
	ratio     image.YCbCrSubsampleRatio
	fullRange bool
}

// convertPlan holds everything precomputed for one frame geometry: range
// expansion tables for the fixed-point color transform and the chroma sample
// index for every row and column.
type convertPlan struct {
	key planKey

	// 18.14 fixed point contribution tables indexed by sample value.
	yTab  [256]int32
	crR   [256]int32
	cbG   [256]int32
	crG   [256]int32
	cbB   [256]int32
	cRow  []int // chroma row per luma row
	cCol  []int // chroma column per luma column
}

// planner caches the most recent conversion plan, mirroring how a decoder
// keeps one scaler context alive while the stream geometry is stable.
type planner struct {
	plan     *convertPlan
	rebuilds int
}

// planFor returns a plan matching the image, building one only when the
// cached plan does not fit.
func (p *planner) planFor(img *image.YCbCr, fullRange bool) *convertPlan {
	key := planKey{
		width:     img.Rect.Dx(),
		height:    img.Rect.Dy(),
		ratio:     img.SubsampleRatio,
		fullRange: fullRange,
	}
	if p.plan != nil && p.plan.key == key {
		return p.plan
	}
	p.plan = buildPlan(key)
	p.rebuilds++
	return p.plan
}

func buildPlan(key planKey) *convertPlan {
	plan := &convertPlan{key: key}

	// ITU-R BT.601 coefficients in 18.14 fixed point. Studio-range input is
	// expanded to full range inside the luma and chroma tables so the per
	// pixel loop is identical for both ranges.
	const one = 1 << 14
	for i := 0; i < 256; i++ {
		y, c := int32(i), int32(i)-128
		if !key.fullRange {
			y = clamp255((int32(i) - 16) * 255 / 219)
			c = (int32(i) - 128) * 255 / 224
		}
		plan.yTab[i] = y*one + one/2
		plan.crR[i] = mulFixed(22970, c) // 1.402
		plan.cbG[i] = mulFixed(5638, c)  // 0.344136
		plan.crG[i] = mulFixed(11700, c) // 0.714136
		plan.cbB[i] = mulFixed(29032, c) // 1.772
	}

	plan.cRow = make([]int, key.height)
	plan.cCol = make([]int, key.width)
	shiftX, shiftY := chromaShift(key.ratio)
	for y := 0; y < key.height; y++ {
		plan.cRow[y] = y >> shiftY
	}
	for x := 0; x < key.width; x++ {
		plan.cCol[x] = x >> shiftX
	}
	return plan
}

// mulFixed multiplies a 18.14 fixed point coefficient by a plain integer.
func mulFixed(coeff, v int32) int32 {
	return coeff * v
}

func clamp255(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// chromaShift returns the horizontal and vertical subsampling shifts.
func chromaShift(r image.YCbCrSubsampleRatio) (shiftX, shiftY uint) {
	switch r {
	case image.YCbCrSubsampleRatio420:
		return 1, 1
	case image.YCbCrSubsampleRatio422:
		return 1, 0
	case image.YCbCrSubsampleRatio440:
		return 0, 1
	case image.YCbCrSubsampleRatio411:
		return 2, 0
	case image.YCbCrSubsampleRatio410:
		return 2, 1
	default: // 4:4:4
		return 0, 0
	}
}

// Convert turns the decoded image into a BGR frame using the cached plan.
func (p *planner) Convert(img *image.YCbCr, fullRange bool) *Frame {
	plan := p.planFor(img, fullRange)
	w, h := plan.key.width, plan.key.height

	frame := &Frame{
		Width:  w,
		Height: h,
		Stride: w * 3,
		Pixels: make([]byte, w*h*3),
	}

	for y := 0; y < h; y++ {
		yRow := img.Y[y*img.YStride:]
		cOff := plan.cRow[y] * img.CStride
		dst := frame.Pixels[y*frame.Stride:]
		for x := 0; x < w; x++ {
			yv := plan.yTab[yRow[x]]
			cb := img.Cb[cOff+plan.cCol[x]]
			cr := img.Cr[cOff+plan.cCol[x]]

			r := clamp255((yv + plan.crR[cr]) >> 14)
			g := clamp255((yv - plan.cbG[cb] - plan.crG[cr]) >> 14)
			b := clamp255((yv + plan.cbB[cb]) >> 14)

			dst[x*3+0] = byte(b)
			dst[x*3+1] = byte(g)
			dst[x*3+2] = byte(r)
		}
	}
	return frame
}

// convertGray handles the rare grayscale JPEG by replicating luma into all
// three channels. No plan is needed.
func convertGray(img *image.Gray) *Frame {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	frame := &Frame{Width: w, Height: h, Stride: w * 3, Pixels: make([]byte, w*h*3)}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		dst := frame.Pixels[y*frame.Stride:]
		for x := 0; x < w; x++ {
			v := row[x]
			dst[x*3+0] = v
			dst[x*3+1] = v
			dst[x*3+2] = v
		}
	}
	return frame
}
