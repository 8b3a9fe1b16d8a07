package rootfs

import "errors"

var (
	ErrLayerExtract     = errors.New("layer extraction failed")
	ErrUnsupportedLayer = errors.New("unsupported layer format")
	ErrVolumeSource     = errors.New("volume source not found")
	ErrVolumeApply      = errors.New("volume apply failed")
)
