package usecase_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"marketplace/internal/domain/model"
	"marketplace/internal/infra/paystack"
	"marketplace/internal/usecase"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func bankInput(bank string) usecase.BankDetailsInput {
	return usecase.BankDetailsInput{BankName: bank, AccountNumber: "0123456789", AccountName: "Ada Stores Ltd"}
}

func TestUpdateBankDetails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.seedVendor(t, model.Vendor{})

	out, err := e.vendors.UpdateBankDetails(ctx, v.UserID, bankInput("GTBank"))
	require.NoError(t, err)
	assert.Equal(t, "GTBank", out.BankName)

	stored, err := e.repos.Vendors().FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", stored.BankAccountNumber)
}

func TestUpdateBankDetails_Refusals(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.seedVendor(t, model.Vendor{})

	_, err := e.vendors.UpdateBankDetails(ctx, v.UserID, bankInput("Foo Bank"))
	requireKind(t, err, usecase.ErrUnsupportedBank, http.StatusBadRequest)

	_, err = e.vendors.UpdateBankDetails(ctx, v.UserID, usecase.BankDetailsInput{BankName: "GTBank", AccountNumber: "12ab5678"})
	requireKind(t, err, usecase.ErrInvalidRequest, http.StatusBadRequest)

	_, err = e.vendors.UpdateBankDetails(ctx, uuid.NewString(), bankInput("GTBank"))
	requireKind(t, err, usecase.ErrNotFound, http.StatusNotFound)

	code := "ACCT_locked"
	locked := e.seedVendor(t, model.Vendor{IsApproved: true, PaystackSubaccountCode: &code})
	_, err = e.vendors.UpdateBankDetails(ctx, locked.UserID, bankInput("GTBank"))
	requireKind(t, err, usecase.ErrInconsistentState, http.StatusConflict)
}

// 承認すると受取先まで作られる
func TestApproveVendor_ProvisionsSubaccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.seedVendor(t, model.Vendor{BankName: "Zenith Bank", BankAccountNumber: "0123456789", BankAccountName: "Ada Stores Ltd"})

	e.gateway.On("CreateSubaccount", mock.Anything, mock.MatchedBy(func(in paystack.SubaccountRequest) bool {
		return in.BankCode == "057" && in.PercentageCharge == 5
	})).Return("ACCT_zen123", nil).Once()

	out, err := e.vendors.Approve(ctx, "admin-1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, usecase.SubaccountActive, out.SubaccountStatus)
	assert.Equal(t, "ACCT_zen123", out.SubaccountCode)
	assert.True(t, out.Vendor.IsApproved)

	stored, err := e.repos.Vendors().FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACCT_zen123", stored.SubaccountCode())
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionApproveVendor))
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionProvisionPayout))

	// 再承認してもゲートウェイは呼ばれない
	again, err := e.vendors.Approve(ctx, "admin-1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACCT_zen123", again.SubaccountCode)
	e.gateway.AssertNumberOfCalls(t, "CreateSubaccount", 1)
}

// 受取先が作れなくても承認は残る
func TestApproveVendor_ProvisioningFailureKeepsApproval(t *testing.T) {
	cases := []struct {
		name   string
		vendor model.Vendor
		gwErr  error
		reason string
	}{
		{"unsupported bank", model.Vendor{BankName: "Foo Bank", BankAccountNumber: "0123456789", BankAccountName: "Ada"}, nil, "unsupported bank: Foo Bank"},
		{"incomplete", model.Vendor{BankName: "GTBank"}, nil, "vendor bank details incomplete"},
		{"gateway down", model.Vendor{BankName: "GTBank", BankAccountNumber: "0123456789", BankAccountName: "Ada"}, fmt.Errorf("%w: timeout", paystack.ErrUnavailable), "payment gateway unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			ctx := context.Background()
			v := e.seedVendor(t, tc.vendor)
			if tc.gwErr != nil {
				e.gateway.On("CreateSubaccount", mock.Anything, mock.Anything).Return("", tc.gwErr).Once()
			}

			out, err := e.vendors.Approve(ctx, "admin-1", v.ID)
			require.NoError(t, err)
			assert.Equal(t, usecase.SubaccountPending, out.SubaccountStatus)
			assert.Equal(t, tc.reason, out.Reason)

			stored, err := e.repos.Vendors().FindByID(ctx, v.ID)
			require.NoError(t, err)
			assert.True(t, stored.IsApproved)
			assert.False(t, stored.HasSubaccount())

			list, err := e.vendors.ListUnprovisioned(ctx, 10)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, v.ID, list[0].ID)
		})
	}
}

func TestRejectVendor(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	v := e.seedVendor(t, model.Vendor{IsApproved: true})

	out, err := e.vendors.Reject(ctx, "admin-1", v.ID)
	require.NoError(t, err)
	assert.False(t, out.IsApproved)
	assert.Equal(t, int64(1), e.auditCount(t, model.AuditActionRejectVendor))

	_, err = e.vendors.Reject(ctx, "admin-1", uuid.NewString())
	requireKind(t, err, usecase.ErrNotFound, http.StatusNotFound)

	_, err = e.vendors.Reject(ctx, "", v.ID)
	requireKind(t, err, usecase.ErrUnauthenticated, http.StatusUnauthorized)
}

func TestListUnprovisioned_Reasons(t *testing.T) {
	e := newEnv(t)
	ready := e.seedVendor(t, model.Vendor{IsApproved: true, BankName: "UBA", BankAccountNumber: "0123456789", BankAccountName: "Ada"})
	e.seedVendor(t, model.Vendor{IsApproved: false, BankName: "UBA", BankAccountNumber: "0123456789", BankAccountName: "Ada"})

	list, err := e.vendors.ListUnprovisioned(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ready.ID, list[0].ID)
	assert.Equal(t, "ready to provision", list[0].Reason)
}
