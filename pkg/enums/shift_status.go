package enums

// ShiftStatus tracks a cash drawer session.
type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "open"
	ShiftClosed ShiftStatus = "closed"
)

func (s ShiftStatus) String() string {
	return string(s)
}

func (s ShiftStatus) IsValid() bool {
	return s == ShiftOpen || s == ShiftClosed
}
