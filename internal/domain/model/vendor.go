package model

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrIncompleteBankDetails = errors.New("vendor bank details incomplete")
	ErrInvalidAccountNumber  = errors.New("invalid bank account number")
)

type Vendor struct {
	ID                      string  `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID                  string  `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	StoreName               string  `gorm:"type:varchar(255);not null" json:"store_name"`
	BankName                string  `gorm:"type:varchar(100)" json:"bank_name"`
	BankAccountNumber       string  `gorm:"type:varchar(20)" json:"bank_account_number"`
	BankAccountName         string  `gorm:"type:varchar(255)" json:"bank_account_name"`
	VerificationDocumentURL string  `gorm:"type:text" json:"verification_document_url"`
	IsApproved              bool    `gorm:"not null;default:false;index" json:"is_approved"`
	PaystackSubaccountCode  *string `gorm:"type:varchar(50)" json:"paystack_subaccount_code"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (v Vendor) HasSubaccount() bool {
	return v.PaystackSubaccountCode != nil && *v.PaystackSubaccountCode != ""
}

func (v Vendor) SubaccountCode() string {
	if v.PaystackSubaccountCode == nil {
		return ""
	}
	return *v.PaystackSubaccountCode
}

func (v Vendor) BankDetails() (BankDetails, error) {
	return NewBankDetails(v.BankName, v.BankAccountNumber, v.BankAccountName)
}

// 振込先。3項目すべて必須。
type BankDetails struct {
	BankName      string
	AccountNumber string
	AccountName   string
}

func NewBankDetails(bankName, accountNumber, accountName string) (BankDetails, error) {
	d := BankDetails{
		BankName:      strings.TrimSpace(bankName),
		AccountNumber: strings.TrimSpace(accountNumber),
		AccountName:   strings.TrimSpace(accountName),
	}
	if d.BankName == "" || d.AccountNumber == "" || d.AccountName == "" {
		return BankDetails{}, ErrIncompleteBankDetails
	}
	for _, r := range d.AccountNumber {
		if r < '0' || r > '9' {
			return BankDetails{}, ErrInvalidAccountNumber
		}
	}
	return d, nil
}
