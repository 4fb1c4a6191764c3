package camera

import (
	"fmt"

	"github.com/vladimirvivien/go4vl/v4l2"

	"camctl/pkg/types"
)

// V4L2 control ids, see linux/v4l2-controls.h.
const (
	ctrlColorFx             v4l2.CtrlID = 9963807  // V4L2_CID_COLORFX
	ctrlExposureAuto        v4l2.CtrlID = 10094849 // V4L2_CID_EXPOSURE_AUTO
	ctrlExposureAbsolute    v4l2.CtrlID = 10094850 // V4L2_CID_EXPOSURE_ABSOLUTE
	ctrlFocusAuto           v4l2.CtrlID = 10094860 // V4L2_CID_FOCUS_AUTO
	ctrlZoomAbsolute        v4l2.CtrlID = 10094861 // V4L2_CID_ZOOM_ABSOLUTE
	ctrlWhiteBalancePreset  v4l2.CtrlID = 10094868 // V4L2_CID_AUTO_N_PRESET_WHITE_BALANCE
	ctrlImageStabilization  v4l2.CtrlID = 10094870 // V4L2_CID_IMAGE_STABILIZATION
	ctrlISOSensitivityAuto  v4l2.CtrlID = 10094872 // V4L2_CID_ISO_SENSITIVITY_AUTO
	ctrlAutoFocusStart      v4l2.CtrlID = 10094876 // V4L2_CID_AUTO_FOCUS_START
	ctrlAutoFocusStop       v4l2.CtrlID = 10094877 // V4L2_CID_AUTO_FOCUS_STOP
	ctrlAutoFocusStatus     v4l2.CtrlID = 10094878 // V4L2_CID_AUTO_FOCUS_STATUS
	ctrlFlashLEDMode        v4l2.CtrlID = 10225921 // V4L2_CID_FLASH_LED_MODE
	ctrlJPEGCompressQuality v4l2.CtrlID = 10291459 // V4L2_CID_JPEG_COMPRESSION_QUALITY
)

const (
	autoFocusStatusBusy    = 1 << 0
	autoFocusStatusReached = 1 << 1
	autoFocusStatusFailed  = 1 << 2
)

// defaultControls are applied whenever a stream is opened.
var defaultControls = types.Controls{
	ctrlExposureAuto:       1,    // Auto Exposure: Manual Mode
	ctrlExposureAbsolute:   3000, // Exposure Time, Absolute
	ctrlISOSensitivityAuto: 1,    // ISO Sensitivity, Auto
}

var whiteBalanceValues = map[types.WhiteBalance]v4l2.CtrlValue{
	types.WhiteBalanceAuto:         1,
	types.WhiteBalanceIncandescent: 2,
	types.WhiteBalanceFluorescent:  3,
	types.WhiteBalanceDaylight:     6,
	types.WhiteBalanceCloudy:       8,
}

var colorEffectValues = map[types.ColorEffect]v4l2.CtrlValue{
	types.EffectNone:     0,
	types.EffectMono:     1,
	types.EffectSepia:    2,
	types.EffectNegative: 3,
}

var flashModeValues = map[types.FlashMode]v4l2.CtrlValue{
	types.FlashOff:   0,
	types.FlashOn:    1,
	types.FlashTorch: 2,
}

// supportedModes derives the mode sets a device offers from its controls.
func supportedModes(ctrls map[v4l2.CtrlID]v4l2.Control, p *Parameters) {
	p.SupportedFocusModes = []types.FocusMode{types.FocusFixed}
	if _, ok := ctrls[ctrlFocusAuto]; ok {
		p.SupportedFocusModes = append(p.SupportedFocusModes, types.FocusContinuousVideo, types.FocusContinuousPicture)
	}
	if _, ok := ctrls[ctrlAutoFocusStart]; ok {
		p.SupportedFocusModes = append(p.SupportedFocusModes, types.FocusAuto, types.FocusMacro)
	}

	p.SupportedFlashModes = []types.FlashMode{types.FlashOff}
	if _, ok := ctrls[ctrlFlashLEDMode]; ok {
		p.SupportedFlashModes = append(p.SupportedFlashModes, types.FlashOn, types.FlashTorch)
	}

	p.SupportedWhiteBalance = nil
	if _, ok := ctrls[ctrlWhiteBalancePreset]; ok {
		for wb := range whiteBalanceValues {
			p.SupportedWhiteBalance = append(p.SupportedWhiteBalance, wb)
		}
	}

	p.SupportedColorEffects = []types.ColorEffect{types.EffectNone}
	if _, ok := ctrls[ctrlColorFx]; ok {
		p.SupportedColorEffects = append(p.SupportedColorEffects, types.EffectMono, types.EffectSepia, types.EffectNegative)
	}

	if zoom, ok := ctrls[ctrlZoomAbsolute]; ok && zoom.Maximum > zoom.Minimum {
		p.MaxZoom = 10
	}
	_, p.VideoStabilizationSupported = ctrls[ctrlImageStabilization]
}

// controlsFor maps parameters onto the controls the device implements.
// Raw overrides in p.Controls win over mapped values.
func controlsFor(p Parameters, ctrls map[v4l2.CtrlID]v4l2.Control) types.Controls {
	res := make(types.Controls)
	set := func(id v4l2.CtrlID, v v4l2.CtrlValue) {
		if _, ok := ctrls[id]; ok {
			res[id] = v
		}
	}

	for id, v := range defaultControls {
		set(id, v)
	}
	if p.JPEGQuality > 0 {
		set(ctrlJPEGCompressQuality, v4l2.CtrlValue(p.JPEGQuality))
	}
	switch p.FocusMode {
	case types.FocusContinuousVideo, types.FocusContinuousPicture:
		set(ctrlFocusAuto, 1)
	case types.FocusDefault:
	default:
		set(ctrlFocusAuto, 0)
	}
	if v, ok := whiteBalanceValues[p.WhiteBalance]; ok {
		set(ctrlWhiteBalancePreset, v)
	}
	if v, ok := colorEffectValues[p.ColorEffect]; ok {
		set(ctrlColorFx, v)
	}
	if v, ok := flashModeValues[p.FlashMode]; ok {
		set(ctrlFlashLEDMode, v)
	}
	if zoom, ok := ctrls[ctrlZoomAbsolute]; ok && p.MaxZoom > 0 {
		span := zoom.Maximum - zoom.Minimum
		set(ctrlZoomAbsolute, v4l2.CtrlValue(zoom.Minimum+span*int32(p.Zoom)/int32(p.MaxZoom)))
	}
	if p.VideoStabilizationSupported {
		v := v4l2.CtrlValue(0)
		if p.VideoStabilization {
			v = 1
		}
		set(ctrlImageStabilization, v)
	}
	for id, v := range p.Controls {
		res[id] = v
	}

	return res
}

func CtrlToString(ctrl v4l2.Control) string {
	return fmt.Sprintf("Control id (%d) name: %s\t[min: %d; max: %d; step: %d; default: %d current_val: %d]\n",
		ctrl.ID, ctrl.Name, ctrl.Minimum, ctrl.Maximum, ctrl.Step, ctrl.Default, ctrl.Value)
}
