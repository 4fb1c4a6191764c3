package ov

import (
	"testing"
	"time"

	"github.com/vladimirvivien/go4vl/v4l2"

	"camctl/pkg/types"
)

func TestRecordLimit(t *testing.T) {
	if l := (Record{}).Limit(); l.Kind != types.LimitNone {
		t.Fatalf("limit %s", l)
	}
	if l := (Record{MaxDuration: 1500}).Limit(); l.Kind != types.LimitTime || l.Duration != 1500*time.Millisecond {
		t.Fatalf("limit %s", l)
	}
	if l := (Record{MaxBytes: 1 << 20}).Limit(); l.Kind != types.LimitSize || l.Bytes != 1<<20 {
		t.Fatalf("limit %s", l)
	}
}

func TestNewConfig(t *testing.T) {
	c := NewConfig(v4l2.Control{ID: 0x00980900, Name: "Brightness", Minimum: -64, Maximum: 64, Step: 1, Default: 0, Value: 10})
	if c.IsMenu || c.MenuItems != nil {
		t.Fatalf("plain control reported as menu: %+v", c)
	}
	if c.Minimum != -64 || c.Maximum != 64 || c.Value != 10 || c.Name != "Brightness" {
		t.Fatalf("config %+v", c)
	}
}
