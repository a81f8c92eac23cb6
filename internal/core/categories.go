package core

var (
	expenseCategories = []string{"飲食", "交通", "購物", "住房", "教育", "娛樂", "其他", "孝親費"}
	incomeCategories  = []string{"薪資", "獎金", "投資", "其他"}
	paymentMethods    = []PaymentMethod{Cash, CreditCard, BankTransfer}
)

// Categories returns the selectable categories for a transaction type.
func Categories(t TxType) []string {
	switch t {
	case Income:
		return append([]string(nil), incomeCategories...)
	case Expense:
		return append([]string(nil), expenseCategories...)
	}
	return nil
}

func IsCategory(t TxType, name string) bool {
	for _, c := range Categories(t) {
		if c == name {
			return true
		}
	}
	return false
}

// PaymentMethods lists the methods offered for expenses. Income carries none.
func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

func ValidPayment(t TxType, pm PaymentMethod) bool {
	if t == Income {
		return true
	}
	for _, p := range paymentMethods {
		if p == pm {
			return true
		}
	}
	return false
}
