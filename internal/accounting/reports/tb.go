package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// CenterBalance nests posted movements of one analysis center under an account.
type CenterBalance struct {
	AnalysisCenterID int64           `json:"analysis_center_id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	TotalDebit       decimal.Decimal `json:"total_debit"`
	TotalCredit      decimal.Decimal `json:"total_credit"`
}

// AccountBalance is one trial balance row: the posted debit and credit totals
// of an account within a period's date range.
type AccountBalance struct {
	AccountID   int64           `json:"account_id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Centers     []CenterBalance `json:"centers,omitempty"`
}

// Net returns debit minus credit.
func (a AccountBalance) Net() decimal.Decimal {
	return a.TotalDebit.Sub(a.TotalCredit)
}

// CategoryTotal groups trial balance rows of one account category.
type CategoryTotal struct {
	Category    string           `json:"category"`
	Accounts    []AccountBalance `json:"accounts"`
	TotalDebit  decimal.Decimal  `json:"total_debit"`
	TotalCredit decimal.Decimal  `json:"total_credit"`
}

// Summary is the grouped trial balance with grand totals.
type Summary struct {
	Categories  []CategoryTotal `json:"categories"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
}

// Balanced reports whether grand total debits equal grand total credits.
func (s Summary) Balanced() bool {
	return s.TotalDebit.Equal(s.TotalCredit)
}

var categoryOrder = map[accounts.AccountType]int{
	accounts.AccountTypeAsset:     0,
	accounts.AccountTypeLiability: 1,
	accounts.AccountTypeEquity:    2,
	accounts.AccountTypeRevenue:   3,
	accounts.AccountTypeExpense:   4,
}

func categoryRank(c string) int {
	if rank, ok := categoryOrder[accounts.AccountType(c)]; ok {
		return rank
	}
	return len(categoryOrder)
}

// Summarize groups rows by category in balance sheet then income statement
// order, with accounts sorted by code inside each group.
func Summarize(rows []AccountBalance) Summary {
	groups := make(map[string]*CategoryTotal)
	keys := make([]string, 0)
	for _, row := range rows {
		key := strings.ToUpper(row.Category)
		grp, ok := groups[key]
		if !ok {
			grp = &CategoryTotal{Category: key, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.TotalDebit = grp.TotalDebit.Add(row.TotalDebit)
		grp.TotalCredit = grp.TotalCredit.Add(row.TotalCredit)
	}

	sort.Slice(keys, func(i, j int) bool {
		ri, rj := categoryRank(keys[i]), categoryRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	result := Summary{TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Categories = append(result.Categories, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.TotalDebit)
		result.TotalCredit = result.TotalCredit.Add(grp.TotalCredit)
	}
	return result
}
