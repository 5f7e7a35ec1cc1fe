/**
 * @description
 * This file defines the banking data the service reads and writes through the
 * upstream aggregator: accounts, movements, transfer institutions and transfer
 * requests, along with the validated inputs for each operation.
 */
package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Account is a bank account visible to an upstream session.
type Account struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Number   string  `json:"number"`
	Branch   string  `json:"branch"`
	Currency string  `json:"currency"`
	Balance  float64 `json:"balance"`
}

// Movement is a single entry of an account statement.
type Movement struct {
	ID        string            `json:"id"`
	Reference string            `json:"reference"`
	Date      string            `json:"date"`
	Detail    string            `json:"detail"`
	Debit     Amount            `json:"debit"`
	Credit    Amount            `json:"credit"`
	ExtraData map[string]string `json:"extra_data,omitempty"`
}

// Amount is a monetary value that banks report either as a number or as an
// empty string when the side of the movement does not apply.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*a = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*a = Amount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = Amount(v)
	return nil
}

// Institution is a transfer destination bank.
type Institution struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// AuthorizationDevice is one method the user may use to authorize a transfer.
type AuthorizationDevice struct {
	Type string   `json:"type"`
	Data []string `json:"data"`
}

// TransferRequest is the result of preprocessing a transfer.
type TransferRequest struct {
	Approved             bool                  `json:"approved"`
	AuthorizationDevices []AuthorizationDevice `json:"authorization_devices"`
	Message              *string               `json:"message"`
	RequestID            string                `json:"request_id"`
}

// TransferResult is the result of confirming a transfer.
type TransferResult struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// MovementsQuery selects the movements of one account in a date range.
// Dates use the dd/mm/yyyy layout.
type MovementsQuery struct {
	AccountNumber string `json:"account_number" validate:"required,max=255"`
	Currency      string `json:"currency" validate:"required,len=3,uppercase,alpha"`
	StartDate     string `json:"start_date" validate:"required,len=10,datetime=02/01/2006"`
	EndDate       string `json:"end_date" validate:"required,len=10,datetime=02/01/2006"`
}

// PreprocessTransferInput requests a new transfer.
type PreprocessTransferInput struct {
	OriginAccount          string  `json:"origin_account" validate:"required,max=255"`
	DestinationInstitution int     `json:"destination_institution" validate:"gte=0"`
	DestinationAccount     string  `json:"destination_account" validate:"required,max=255"`
	DestinationOwnerName   string  `json:"destination_owner_name,omitempty" validate:"omitempty,max=255"`
	DestinationAccountType string  `json:"destination_account_type,omitempty" validate:"omitempty,max=64"`
	Currency               string  `json:"currency" validate:"required,len=3,uppercase,alpha"`
	Amount                 float64 `json:"amount" validate:"gt=0"`
	Concept                string  `json:"concept" validate:"required,max=255"`
	Branch                 *int    `json:"branch,omitempty" validate:"omitempty,gte=0"`
}

// ConfirmTransferInput authorizes a previously preprocessed transfer.
type ConfirmTransferInput struct {
	RequestID                 string `json:"request_id" validate:"required,max=255"`
	AuthorizationType         string `json:"authorization_type" validate:"required,max=64"`
	AuthorizationData         string `json:"authorization_data" validate:"required,max=255"`
	AuthorizationDeviceNumber string `json:"authorization_device_number,omitempty" validate:"omitempty,max=64"`
}
