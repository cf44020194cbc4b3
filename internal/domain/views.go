package domain

// ViewStatus is the presentation state of a fetched resource.
type ViewStatus int

const (
	ViewIdle ViewStatus = iota
	ViewLoading
	ViewReady
	ViewEmpty
	ViewFailed
	// ViewPrompt means the user has to supply input before anything is fetched.
	ViewPrompt
)

func (s ViewStatus) String() string {
	switch s {
	case ViewIdle:
		return "idle"
	case ViewLoading:
		return "loading"
	case ViewReady:
		return "ready"
	case ViewEmpty:
		return "empty"
	case ViewFailed:
		return "failed"
	case ViewPrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// BalanceView is what the balance panel displays.
type BalanceView struct {
	Status ViewStatus
	Amount Money
}

func (v BalanceView) Text() string {
	switch v.Status {
	case ViewLoading:
		return "Loading..."
	case ViewReady:
		return v.Amount.Display()
	case ViewFailed:
		return "Error"
	default:
		return ""
	}
}

// HistoryView is the transaction history list.
type HistoryView struct {
	Status ViewStatus
	Items  []Transaction
}

func (v HistoryView) Text() string {
	switch v.Status {
	case ViewLoading:
		return "Loading..."
	case ViewEmpty:
		return "No transactions"
	case ViewFailed:
		return "Failed to load transactions"
	default:
		return ""
	}
}

// SearchView is the user search result list.
type SearchView struct {
	Status  ViewStatus
	Results []UserMatch
}

func (v SearchView) Text() string {
	switch v.Status {
	case ViewPrompt:
		return "Enter email or wallet ID"
	case ViewEmpty:
		return "No users found"
	case ViewFailed:
		return "Search failed"
	default:
		return ""
	}
}

// RequestListView is one direction of the pending request lists.
type RequestListView struct {
	Direction RequestDirection
	Status    ViewStatus
	Items     []PaymentRequest
}

func (v RequestListView) Text() string {
	if v.Status != ViewEmpty {
		return ""
	}
	if v.Direction == DirectionIncoming {
		return "No incoming requests"
	}
	return "No outgoing requests"
}
