package service

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// PickupQRGenerator renders the QR customers show at the counter when
// their order is ready.
type PickupQRGenerator struct {
	BaseURL string
}

func (g PickupQRGenerator) Encode(orderID string) ([]byte, error) {
	qrData := fmt.Sprintf("%s/pickup?order_id=%s", g.BaseURL, orderID)
	return qrcode.Encode(qrData, qrcode.Medium, 256)
}

var _ QREncoder = PickupQRGenerator{}
