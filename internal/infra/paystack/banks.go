package paystack

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupportedBank = errors.New("unsupported bank")

// 銀行名（小文字）→ Paystackの銀行コード。よく使われるナイジェリアの銀行だけ。
var bankCodes = map[string]string{
	"access bank":              "044",
	"citibank":                 "023",
	"diamond bank":             "063",
	"ecobank":                  "050",
	"fidelity bank":            "070",
	"first bank":               "011",
	"first city monument bank": "214",
	"fcmb":                     "214",
	"guaranty trust bank":      "058",
	"gtbank":                   "058",
	"gtb":                      "058",
	"heritage bank":            "030",
	"keystone bank":            "082",
	"polaris bank":             "076",
	"skye bank":                "076",
	"stanbic ibtc":             "221",
	"standard chartered":       "068",
	"sterling bank":            "232",
	"union bank":               "032",
	"united bank for africa":   "033",
	"uba":                      "033",
	"unity bank":               "215",
	"wema bank":                "035",
	"zenith bank":              "057",
	"kuda":                     "50211",
	"opay":                     "999992",
	"palmpay":                  "999991",
}

// LookupBankCode は大文字小文字を無視して銀行コードを返す。
func LookupBankCode(bankName string) (string, error) {
	code, ok := bankCodes[strings.ToLower(strings.TrimSpace(bankName))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBank, bankName)
	}
	return code, nil
}
