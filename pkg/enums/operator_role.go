package enums

import "fmt"

// OperatorRole gates manager-only actions such as voids and retrying frozen sync items.
type OperatorRole string

const (
	OperatorCashier OperatorRole = "cashier"
	OperatorManager OperatorRole = "manager"
)

var validOperatorRoles = []OperatorRole{
	OperatorCashier,
	OperatorManager,
}

func (r OperatorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known OperatorRole.
func (r OperatorRole) IsValid() bool {
	for _, candidate := range validOperatorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseOperatorRole converts raw input into an OperatorRole.
func ParseOperatorRole(value string) (OperatorRole, error) {
	for _, candidate := range validOperatorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operator role %q", value)
}
