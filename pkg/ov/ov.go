package ov

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"

	"camctl/pkg/types"
)

type Open struct {
	Device int `json:"device"`
	// preview target size, zero keeps the configured one
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Photo struct {
	// Download returns the JPEG in the response instead of saving it.
	Download bool `json:"download"`
}

type Record struct {
	Settings *types.VideoSettings `json:"settings"`
	// ms, 0 for no time limit
	MaxDuration int   `json:"maxDuration"`
	MaxBytes    int64 `json:"maxBytes"`
}

func (r Record) Limit() types.RecordLimit {
	switch {
	case r.MaxDuration > 0:
		return types.TimeLimit(time.Duration(r.MaxDuration) * time.Millisecond)
	case r.MaxBytes > 0:
		return types.SizeLimit(r.MaxBytes)
	default:
		return types.NoLimit()
	}
}

type Schedule struct {
	// ms
	Interval int `json:"interval" binding:"required"`
}

type Zoom struct {
	Level int `json:"level"`
}

type Scale struct {
	Factor float64 `json:"factor" binding:"required"`
}

type Preset struct {
	Preset string `json:"preset" binding:"required,oneof=low medium high"`
}

type BufferDepth struct {
	Depth int `json:"depth"`
}

type Config struct {
	ID    v4l2.CtrlID    `json:"id"`
	Value v4l2.CtrlValue `json:"value"`
	Name  string         `json:"name"`

	IsMenu    bool     `json:"isMenu"`
	MenuItems []string `json:"menuItems,omitempty"`

	Minimum int64 `json:"minimum"`
	Maximum int64 `json:"maximum"`
	Step    int64 `json:"step"`
	Default int64 `json:"default"`
}

func NewConfig(ctrl v4l2.Control) Config {
	c := Config{
		ID:      ctrl.ID,
		Value:   ctrl.Value,
		Name:    ctrl.Name,
		IsMenu:  ctrl.IsMenu(),
		Minimum: int64(ctrl.Minimum),
		Maximum: int64(ctrl.Maximum),
		Step:    int64(ctrl.Step),
		Default: int64(ctrl.Default),
	}
	if !c.IsMenu {
		return c
	}
	items, err := ctrl.GetMenuItems()
	if err != nil {
		return c
	}
	for _, m := range items {
		if ctrl.Type == v4l2.CtrlTypeIntegerMenu {
			// integer menus carry the value in the name bytes
			b := []byte(m.Name)
			for i := len(b); i < 8; i++ {
				b = append(b, 0)
			}
			c.MenuItems = append(c.MenuItems, fmt.Sprintf("%d", int64(binary.LittleEndian.Uint64(b[:8]))))
			continue
		}
		c.MenuItems = append(c.MenuItems, m.Name)
	}

	return c
}

type UpdateConfig struct {
	ID    v4l2.CtrlID    `json:"id" binding:"required"`
	Value v4l2.CtrlValue `json:"value"`
}

type State struct {
	Opened    bool                   `json:"opened"`
	State     string                 `json:"state"`
	Device    *types.DeviceInfo      `json:"device,omitempty"`
	Recording *types.RecordingOutput `json:"recording,omitempty"`
	Zoom      int                    `json:"zoom"`
}
