package enums

import "fmt"

// SyncOperationType names the remote resource an outbox item targets.
type SyncOperationType string

const (
	SyncTransaction         SyncOperationType = "transaction"
	SyncCustomer            SyncOperationType = "customer"
	SyncInventoryAdjustment SyncOperationType = "inventory_adjustment"
)

var validSyncOperationTypes = []SyncOperationType{
	SyncTransaction,
	SyncCustomer,
	SyncInventoryAdjustment,
}

// String implements fmt.Stringer.
func (t SyncOperationType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical operation_type column.
func (t SyncOperationType) IsValid() bool {
	for _, candidate := range validSyncOperationTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSyncOperationType converts raw input into SyncOperationType.
func ParseSyncOperationType(value string) (SyncOperationType, error) {
	for _, candidate := range validSyncOperationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync operation type %q", value)
}

// SyncAction is the verb applied to the remote resource.
type SyncAction string

const (
	SyncActionCreate SyncAction = "create"
	SyncActionVoid   SyncAction = "void"
	SyncActionUpsert SyncAction = "upsert"
	SyncActionAdjust SyncAction = "adjust"
)

var validSyncActions = []SyncAction{
	SyncActionCreate,
	SyncActionVoid,
	SyncActionUpsert,
	SyncActionAdjust,
}

func (a SyncAction) String() string {
	return string(a)
}

func (a SyncAction) IsValid() bool {
	for _, candidate := range validSyncActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseSyncAction converts raw input into SyncAction.
func ParseSyncAction(value string) (SyncAction, error) {
	for _, candidate := range validSyncActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync action %q", value)
}
