package models

// allowedTransitions maps a current status to the statuses it may move to.
var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusFailed:     {StatusPending},
	StatusCompleted:  {StatusRefunded},
	StatusRefunded:   {},
}

func CanTransition(from, to TransactionStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no automatic transition leaves the status.
// Failed counts as terminal: only an explicit retry moves it.
func IsTerminal(s TransactionStatus) bool {
	return s == StatusCompleted || s == StatusRefunded || s == StatusFailed
}

func ValidCurrency(c Currency) bool {
	for _, v := range Currencies {
		if v == c {
			return true
		}
	}
	return false
}

func ValidType(t TransactionType) bool {
	for _, v := range TransactionTypes {
		if v == t {
			return true
		}
	}
	return false
}

func ValidMethod(m PaymentMethod) bool {
	for _, v := range PaymentMethods {
		if v == m {
			return true
		}
	}
	return false
}
