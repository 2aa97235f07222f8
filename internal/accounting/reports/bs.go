package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Balance decimal.Decimal `json:"balance"`
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string                `json:"label"`
	Accounts []BalanceSheetAccount `json:"accounts"`
	Total    decimal.Decimal       `json:"total"`
}

// BalanceSheet is the period movement view of assets, liabilities, and
// equity. Net income of the period is carried into equity as current earnings.
type BalanceSheet struct {
	Assets                    BalanceSheetSection `json:"assets"`
	Liabilities               BalanceSheetSection `json:"liabilities"`
	Equity                    BalanceSheetSection `json:"equity"`
	CurrentEarnings           decimal.Decimal     `json:"current_earnings"`
	TotalLiabilitiesAndEquity decimal.Decimal     `json:"total_liabilities_and_equity"`
}

// Balanced reports whether assets equal liabilities plus equity.
func (b BalanceSheet) Balanced() bool {
	return b.Assets.Total.Equal(b.TotalLiabilitiesAndEquity)
}

// BuildBalanceSheet aggregates rows into assets, liabilities, and equity sections.
// Assets carry debit balances, liabilities and equity carry credit balances.
func BuildBalanceSheet(rows []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets", Total: decimal.Zero}
	liabilities := BalanceSheetSection{Label: "Liabilities", Total: decimal.Zero}
	equity := BalanceSheetSection{Label: "Equity", Total: decimal.Zero}

	for _, acc := range rows {
		switch accounts.AccountType(strings.ToUpper(acc.Category)) {
		case accounts.AccountTypeAsset:
			row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: acc.Net()}
			assets.Accounts = append(assets.Accounts, row)
			assets.Total = assets.Total.Add(row.Balance)
		case accounts.AccountTypeLiability:
			row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: acc.Net().Neg()}
			liabilities.Accounts = append(liabilities.Accounts, row)
			liabilities.Total = liabilities.Total.Add(row.Balance)
		case accounts.AccountTypeEquity:
			row := BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: acc.Net().Neg()}
			equity.Accounts = append(equity.Accounts, row)
			equity.Total = equity.Total.Add(row.Balance)
		}
	}

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })

	earnings := BuildProfitAndLoss(rows).NetIncome
	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		CurrentEarnings:           earnings,
		TotalLiabilitiesAndEquity: liabilities.Total.Add(equity.Total).Add(earnings),
	}
}
