package notify

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRSize is the pixel width of rendered ticket QR images.
const QRSize = 256

// RenderQR encodes a redemption code as a PNG QR image. The scanning
// stations read this exact payload back at check-in.
func RenderQR(ticketCode string) ([]byte, error) {
	png, err := qrcode.Encode(ticketCode, qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("notify.RenderQR: %w", err)
	}
	return png, nil
}
