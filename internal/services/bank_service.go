package services

import (
	"encoding/json"
	"net/http"
)

// Bank is a payout destination bank.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// nigerianBanks is the directory withdrawal bank codes are validated and
// displayed against. CBN codes, not NIBSS institution codes.
var nigerianBanks = []Bank{
	{Code: "044", Name: "Access Bank"},
	{Code: "023", Name: "Citibank Nigeria"},
	{Code: "050", Name: "Ecobank Nigeria"},
	{Code: "070", Name: "Fidelity Bank"},
	{Code: "011", Name: "First Bank of Nigeria"},
	{Code: "214", Name: "First City Monument Bank"},
	{Code: "058", Name: "Guaranty Trust Bank"},
	{Code: "301", Name: "Jaiz Bank"},
	{Code: "082", Name: "Keystone Bank"},
	{Code: "076", Name: "Polaris Bank"},
	{Code: "101", Name: "Providus Bank"},
	{Code: "221", Name: "Stanbic IBTC Bank"},
	{Code: "068", Name: "Standard Chartered Bank"},
	{Code: "232", Name: "Sterling Bank"},
	{Code: "032", Name: "Union Bank of Nigeria"},
	{Code: "033", Name: "United Bank For Africa"},
	{Code: "215", Name: "Unity Bank"},
	{Code: "035", Name: "Wema Bank"},
	{Code: "057", Name: "Zenith Bank"},
	{Code: "50211", Name: "Kuda Bank"},
	{Code: "090405", Name: "Moniepoint MFB"},
	{Code: "100002", Name: "Paga"},
	{Code: "110005", Name: "Paycom"},
}

// BankService serves the payout bank directory.
type BankService struct{}

func NewBankService() *BankService {
	return &BankService{}
}

// KnownBankCode reports whether code is in the directory.
func (bs *BankService) KnownBankCode(code string) bool {
	return knownBankCode(code)
}

func knownBankCode(code string) bool {
	for _, b := range nigerianBanks {
		if b.Code == code {
			return true
		}
	}
	return false
}

// GetAllBanks lists payout destination banks.
// @Summary List supported banks
// @Tags banks
// @Produce json
// @Success 200 {array} Bank
// @Router /banks [get]
func (bs *BankService) GetAllBanks(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	json.NewEncoder(w).Encode(nigerianBanks)
}
