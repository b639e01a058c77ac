package enums

// CommissionStatus is shared by establishment_commissions and commission_invoices.
type CommissionStatus string

const (
	CommissionStatusPending CommissionStatus = "pending"
	CommissionStatusPaid    CommissionStatus = "paid"
)

var validCommissionStatuses = []CommissionStatus{
	CommissionStatusPending,
	CommissionStatusPaid,
}

func (s CommissionStatus) IsValid() bool { return member(validCommissionStatuses, s) }

func ParseCommissionStatus(value string) (CommissionStatus, error) {
	return parse("commission status", value, validCommissionStatuses)
}
