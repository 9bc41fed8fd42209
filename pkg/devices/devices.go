package devices

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

// Printer prints a rendered receipt.
type Printer interface {
	Print(ctx context.Context, receipt string) error
}

// CashDrawer pops the till.
type CashDrawer interface {
	OpenDrawer(ctx context.Context) error
}

// ChargeResult is what a terminal reports for an approved charge.
type ChargeResult struct {
	Reference string
}

// CardTerminal takes card payments. reference identifies the tender and is
// used as the processor idempotency key.
type CardTerminal interface {
	Charge(ctx context.Context, amount decimal.Decimal, reference string) (ChargeResult, error)
}

// Reverser is implemented by terminals that can give back an approved charge.
type Reverser interface {
	Reverse(ctx context.Context, reference string, amount decimal.Decimal) error
}

type BarcodeScanner interface {
	ReadBarcode(ctx context.Context) (string, error)
}

type Scale interface {
	ReadWeight(ctx context.Context) (decimal.Decimal, error)
}

// ScaleFunc adapts a function to Scale.
type ScaleFunc func(ctx context.Context) (decimal.Decimal, error)

func (f ScaleFunc) ReadWeight(ctx context.Context) (decimal.Decimal, error) {
	return f(ctx)
}

// ScannerFunc adapts a function to BarcodeScanner.
type ScannerFunc func(ctx context.Context) (string, error)

func (f ScannerFunc) ReadBarcode(ctx context.Context) (string, error) {
	return f(ctx)
}

// Set is the hardware attached to one register. Nil members are absent.
type Set struct {
	Printer  Printer
	Drawer   CashDrawer
	Terminal CardTerminal
	Scanner  BarcodeScanner
	Scale    Scale
}

// Wrap tags err as a device failure unless it already carries a code.
func Wrap(device string, err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDevice, err, fmt.Sprintf("%s failed", device)).
		WithDetails(map[string]any{"device": device})
}

// ErrUnavailable is returned when a register has no device of the requested kind.
func ErrUnavailable(device string) error {
	return pkgerrors.New(pkgerrors.CodeDevice, fmt.Sprintf("no %s attached", device)).
		WithDetails(map[string]any{"device": device})
}
