package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
)

const (
	SignatureHeader = "X-Paystack-Signature"

	EventChargeSuccess = "charge.success"
)

var ErrMalformedEvent = errors.New("malformed webhook event")

// VerifySignature は hex(HMAC-SHA512(rawBody, secret)) とヘッダ値を比べる。
// 本文はパース前のバイト列をそのまま使うこと。
func VerifySignature(rawBody []byte, signature string, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	got := strings.ToLower(strings.TrimSpace(signature))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// Sign はテストや再送ツール用
func Sign(rawBody []byte, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}

type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// 金額などは参考値。確定はverifyの結果で行う。
type EventData struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    int64           `json:"amount"`
	Channel   string          `json:"channel"`
	Metadata  json.RawMessage `json:"metadata"`
}

func ParseEvent(rawBody []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return Event{}, ErrMalformedEvent
	}
	if ev.Event == "" {
		return Event{}, ErrMalformedEvent
	}
	ev.Data.Reference = strings.TrimSpace(ev.Data.Reference)
	return ev, nil
}
