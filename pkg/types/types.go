package types

import (
	"fmt"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"
)

// Controls are raw V4L2 control overrides applied on top of the mapped settings.
type Controls map[v4l2.CtrlID]v4l2.CtrlValue

type File struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	Bytes   int64     `json:"bytes"`
	ModTime time.Time `json:"modTime"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) Area() int {
	return s.Width * s.Height
}

// FpsRange is a preview frame rate range in frames per second.
type FpsRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r FpsRange) IsZero() bool {
	return r.Max <= 0
}

func (r FpsRange) Contains(fps float64) bool {
	return fps >= r.Min && fps <= r.Max
}

func (r FpsRange) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

// DeviceInfo describes how a capture device is mounted.
type DeviceInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Facing      Facing `json:"facing"`
	Orientation int    `json:"orientation"`
}

func Contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
