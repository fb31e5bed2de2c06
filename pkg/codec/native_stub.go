//go:build !gocv

package codec

import "image"

const nativeAvailable = false

// decodeNative returns an error when built without OpenCV.
func decodeNative(data []byte) (image.Image, error) {
	return nil, ErrNativeUnavailable
}
