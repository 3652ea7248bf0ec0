// postprocess.go: model output decoding and overlap suppression. Kept free of
// gocv types so the geometry can be tested without an OpenCV runtime.
package detect

import "sort"

// Detection is one decoded candidate box in source frame coordinates.
type Detection struct {
	X, Y, W, H float32 // center x/y plus width/height
	Confidence float32
	Class      int
}

// letterbox describes the aspect-preserving fit of a source frame into the
// square model input: uniform scale plus symmetric padding.
type letterbox struct {
	scale      float32
	padX, padY float32
}

// fitLetterbox computes the letterbox for a source frame of the given size.
func fitLetterbox(srcW, srcH, inputSize int) letterbox {
	scale := min(float32(inputSize)/float32(srcW), float32(inputSize)/float32(srcH))
	return letterbox{
		scale: scale,
		padX:  (float32(inputSize) - scale*float32(srcW)) / 2,
		padY:  (float32(inputSize) - scale*float32(srcH)) / 2,
	}
}

// toSource maps a box from model input coordinates back to the source frame.
func (lb letterbox) toSource(d *Detection) {
	d.X = (d.X - lb.padX) / lb.scale
	d.Y = (d.Y - lb.padY) / lb.scale
	d.W /= lb.scale
	d.H /= lb.scale
}

// decodeOutput walks a channels-first [4+C x N] output tensor and returns the
// candidates whose best-scoring class is the target class and above the
// confidence threshold. A box that scores higher for some other class is not
// a target hit even when the target row alone would pass. Box values are in
// model input coordinates; callers map them back with the letterbox.
func decodeOutput(data []float32, numClasses, numAnchors int, confidence float32, targetClass int) []Detection {
	if targetClass < 0 || targetClass >= numClasses {
		return nil
	}
	var out []Detection
	for a := range numAnchors {
		score := float32(0)
		best := 0
		for c := range numClasses {
			if s := data[(4+c)*numAnchors+a]; s > score {
				score = s
				best = c
			}
		}
		if best != targetClass || score < confidence {
			continue
		}
		out = append(out, Detection{
			X:          data[0*numAnchors+a],
			Y:          data[1*numAnchors+a],
			W:          data[2*numAnchors+a],
			H:          data[3*numAnchors+a],
			Confidence: score,
			Class:      targetClass,
		})
	}
	return out
}

// iou computes intersection over union of two center-format boxes.
func iou(a, b *Detection) float32 {
	ax1, ay1 := a.X-a.W/2, a.Y-a.H/2
	ax2, ay2 := a.X+a.W/2, a.Y+a.H/2
	bx1, by1 := b.X-b.W/2, b.Y-b.H/2
	bx2, by2 := b.X+b.W/2, b.Y+b.H/2

	ix := min(ax2, bx2) - max(ax1, bx1)
	iy := min(ay2, by2) - max(ay1, by1)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.W*a.H + b.W*b.H - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// suppressOverlaps runs greedy non-maximum suppression: candidates are taken
// in descending confidence order and any later box overlapping a kept box
// above the threshold is dropped.
func suppressOverlaps(dets []Detection, overlap float32) []Detection {
	if len(dets) <= 1 {
		return dets
	}
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	kept := dets[:0:0]
	for i := range dets {
		suppressed := false
		for j := range kept {
			if iou(&dets[i], &kept[j]) > overlap {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, dets[i])
		}
	}
	return kept
}
