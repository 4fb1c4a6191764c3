package camera

import (
	"math"

	"camctl/pkg/types"
)

const aspectTolerance = 0.05

func FindLowSize(sizes []types.Size) (types.Size, bool) {
	if len(sizes) == 0 {
		return types.Size{}, false
	}
	low := sizes[0]
	for _, s := range sizes[1:] {
		if s.Area() < low.Area() {
			low = s
		}
	}
	return low, true
}

func FindHighSize(sizes []types.Size) (types.Size, bool) {
	if len(sizes) == 0 {
		return types.Size{}, false
	}
	high := sizes[0]
	for _, s := range sizes[1:] {
		if s.Area() > high.Area() {
			high = s
		}
	}
	return high, true
}

// FindMediumSize picks the size whose width is nearest the midpoint between
// the smallest and largest supported widths. Ties go to the earlier entry.
func FindMediumSize(sizes []types.Size) (types.Size, bool) {
	if len(sizes) == 0 {
		return types.Size{}, false
	}
	minW, maxW := sizes[0].Width, sizes[0].Width
	for _, s := range sizes[1:] {
		minW = min(minW, s.Width)
		maxW = max(maxW, s.Width)
	}
	mid := float64(minW+maxW) / 2

	medium := sizes[0]
	best := math.Abs(float64(medium.Width) - mid)
	for _, s := range sizes[1:] {
		if d := math.Abs(float64(s.Width) - mid); d < best {
			best = d
			medium = s
		}
	}
	return medium, true
}

// OptimalPreviewSize chooses a size matching the aspect ratio of target
// (within a small tolerance) with the nearest height. Without an aspect
// match the nearest height wins regardless of ratio.
func OptimalPreviewSize(sizes []types.Size, target types.Size) (types.Size, bool) {
	if len(sizes) == 0 || target.IsZero() {
		return types.Size{}, false
	}
	// sensors report landscape sizes
	w, h := target.Width, target.Height
	if h > w {
		w, h = h, w
	}
	ratio := float64(w) / float64(h)

	nearest := func(filter func(types.Size) bool) (types.Size, bool) {
		var (
			res   types.Size
			found bool
			diff  = math.MaxFloat64
		)
		for _, s := range sizes {
			if !filter(s) {
				continue
			}
			if d := math.Abs(float64(s.Height - h)); d < diff {
				res, diff, found = s, d, true
			}
		}
		return res, found
	}

	if s, ok := nearest(func(s types.Size) bool {
		return s.Height > 0 && math.Abs(float64(s.Width)/float64(s.Height)-ratio) <= aspectTolerance
	}); ok {
		return s, true
	}
	return nearest(func(types.Size) bool { return true })
}

// DisplayOrientation combines the display rotation with the mounting
// orientation of the sensor. Front facing sensors are mirrored.
func DisplayOrientation(info types.DeviceInfo, displayRotation int) int {
	degrees := normalizeDegrees(displayRotation)
	if info.Facing == types.FacingFront {
		r := (info.Orientation + degrees) % 360
		return (360 - r) % 360
	}
	return (info.Orientation - degrees + 360) % 360
}

// PictureRotation is the rotation a captured image needs for the given
// display rotation.
func PictureRotation(info types.DeviceInfo, displayRotation int) int {
	degrees := normalizeDegrees(displayRotation)
	if info.Facing == types.FacingFront {
		return (info.Orientation - degrees + 360) % 360
	}
	return (info.Orientation + degrees) % 360
}

// normalizeDegrees snaps an arbitrary angle to the nearest quarter turn.
func normalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return ((deg + 45) / 90 * 90) % 360
}
