package qrpayload

import (
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultImageSize = 256
	MinImageSize     = 64
	MaxImageSize     = 1024
)

// ErrInvalidImage is returned when the content or size cannot be drawn as a QR code.
var ErrInvalidImage = errors.New("invalid qr image request")

// RenderPNG draws text as a QR code PNG of size x size pixels.
func RenderPNG(text string, size int) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: qr content cannot be empty", ErrInvalidImage)
	}
	if size == 0 {
		size = DefaultImageSize
	}
	if size < MinImageSize || size > MaxImageSize {
		return nil, fmt.Errorf("%w: qr image size must be between %d and %d, got %d", ErrInvalidImage, MinImageSize, MaxImageSize, size)
	}

	// единственная ошибка кодировщика здесь: текст не помещается в QR код
	png, err := qrcode.Encode(text, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to render qr code: %v", ErrInvalidImage, err)
	}
	return png, nil
}
