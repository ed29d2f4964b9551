package hdulib

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// field is one reserve-request form field. Order matters: the anti-tamper
// token is derived from the fields in submission order.
type field struct {
	key   string
	value string
}

const reserveTokenPrefix = "post&/Seat/Index/bookSeats?LAB_JSON=1"

// apiToken derives the Api-Token header the reserve endpoint expects:
// Base64 of the MD5 hex digest of the canonical request string.
func apiToken(fields []field) string {
	var b strings.Builder
	b.WriteString(reserveTokenPrefix)
	for _, f := range fields {
		b.WriteByte('&')
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	sum := md5.Sum([]byte(b.String()))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
}
