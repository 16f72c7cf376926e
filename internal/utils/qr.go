package utils

import (
	"crypto/rand"
	"math/big"

	qrcode "github.com/skip2/go-qrcode"
)

const qrAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// QRCodeLength is the length of the code printed on every ticket.
const QRCodeLength = 16

// NewTicketCode returns a random QRCodeLength code over A-Z0-9.
func NewTicketCode() (string, error) {
	b := make([]byte, QRCodeLength)
	max := big.NewInt(int64(len(qrAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = qrAlphabet[n.Int64()]
	}
	return string(b), nil
}

// TicketQRPNG renders code as a PNG of size x size pixels.
func TicketQRPNG(code string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}
