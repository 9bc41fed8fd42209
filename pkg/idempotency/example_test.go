package idempotency

import (
	"context"
	"fmt"
	"time"
)

func ExampleManager_Claim() {
	ctx := context.Background()
	manager, _ := NewManager(newMemStore(), 30*time.Second)
	txID := "f47ac10b-58cc-4372-a567-0e02b2c3d479"

	for i := 0; i < 2; i++ {
		held, _ := manager.Claim(ctx, "transactions", txID)
		if held {
			fmt.Println("in flight")
			continue
		}
		fmt.Println("applying")
	}
	// Output:
	// applying
	// in flight
}
