//go:build gocv

package codec

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

const nativeAvailable = true

// decodeNative decodes JPEG or PNG through OpenCV.
func decodeNative(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("opencv returned an empty image")
	}
	return mat.ToImage()
}
