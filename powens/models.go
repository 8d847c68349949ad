package powens

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eqtlab/bank-syncer/syncer"
)

// Wire dates come in two shapes: plain dates for transaction dates and
// datetimes for revision stamps.
const (
	wireDate     = "2006-01-02"
	wireDateTime = "2006-01-02 15:04:05"
)

type authInitResponse struct {
	AuthToken string `json:"auth_token"`
}

type tempCodeResponse struct {
	Code string `json:"code"`
}

type accountsEnvelope struct {
	Accounts []json.RawMessage `json:"accounts"`
}

type transactionsEnvelope struct {
	Transactions []json.RawMessage `json:"transactions"`
	Links        pageLinks         `json:"_links"`
}

type pageLinks struct {
	Next *pageLink `json:"next"`
}

type pageLink struct {
	Href string `json:"href"`
}

type apiAccount struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Number     string       `json:"number"`
	IBAN       string       `json:"iban"`
	Balance    *json.Number `json:"balance"`
	Coming     *json.Number `json:"coming"`
	Currency   apiCurrency  `json:"currency"`
	Disabled   *string      `json:"disabled"`
	LastUpdate string       `json:"last_update"`
}

type apiCurrency struct {
	ID string `json:"id"`
}

type apiTransaction struct {
	ID              int64        `json:"id"`
	AccountID       int64        `json:"id_account"`
	Date            string       `json:"date"`
	Value           *json.Number `json:"value"`
	Wording         string       `json:"wording"`
	OriginalWording string       `json:"original_wording"`
	LastUpdate      string       `json:"last_update"`
}

func (a apiAccount) toDomain() (syncer.Account, error) {
	out := syncer.Account{
		ID:       a.ID,
		Name:     a.Name,
		Number:   a.Number,
		IBAN:     a.IBAN,
		Currency: a.Currency.ID,
		Disabled: a.Disabled != nil,
	}

	var err error
	if out.Balance, err = parseAmount(a.Balance); err != nil {
		return syncer.Account{}, fmt.Errorf("parse balance: %w", err)
	}
	if out.ComingBalance, err = parseAmount(a.Coming); err != nil {
		return syncer.Account{}, fmt.Errorf("parse coming balance: %w", err)
	}
	if out.LastUpdate, err = parseWireTime(a.LastUpdate); err != nil {
		return syncer.Account{}, fmt.Errorf("parse last_update: %w", err)
	}

	return out, nil
}

func (t apiTransaction) toDomain(raw json.RawMessage) (syncer.Transaction, error) {
	if t.ID == 0 {
		return syncer.Transaction{}, fmt.Errorf("transaction without id")
	}

	out := syncer.Transaction{
		ID:        t.ID,
		AccountID: t.AccountID,
		Wording:   t.Wording,
		Original:  t.OriginalWording,
		Raw:       raw,
	}

	var err error
	if out.Value, err = parseAmount(t.Value); err != nil {
		return syncer.Transaction{}, fmt.Errorf("parse value: %w", err)
	}
	if out.Date, err = parseWireTime(t.Date); err != nil {
		return syncer.Transaction{}, fmt.Errorf("parse date: %w", err)
	}
	if out.LastUpdate, err = parseWireTime(t.LastUpdate); err != nil {
		return syncer.Transaction{}, fmt.Errorf("parse last_update: %w", err)
	}

	return out, nil
}

func parseAmount(n *json.Number) (decimal.Decimal, error) {
	if n == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

func parseWireTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(wireDateTime, s); err == nil {
		return t, nil
	}
	return time.Parse(wireDate, s)
}
