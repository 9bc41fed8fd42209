package devices

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
	"github.com/angelmondragon/pos-engine/pkg/square"
)

func TestNetworkPrinterWritesEscPos(t *testing.T) {
	server, client := net.Pipe()
	received := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(server)
		received <- data
	}()

	p := NewNetworkPrinter("printer:9100", 0)
	p.dialer = func(context.Context, string, string) (net.Conn, error) { return client, nil }

	require.NoError(t, p.Print(context.Background(), "*Corner Shop\nTotal 21.65\n"))
	data := <-received

	require.True(t, bytes.HasPrefix(data, []byte{esc, '@'}))
	require.Contains(t, string(data), "Corner Shop\n")
	require.Contains(t, string(data), "Total 21.65\n")
	require.True(t, bytes.HasSuffix(data, []byte{gs, 'V', 0x01}))
}

func TestNetworkPrinterDialFailureIsDeviceError(t *testing.T) {
	p := NewNetworkPrinter("printer:9100", 0)
	p.dialer = func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	err := p.OpenDrawer(context.Background())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDevice))
}

func TestNewPrinterKinds(t *testing.T) {
	p, err := NewPrinter(config.PrinterConfig{Kind: "log"}, nil)
	require.NoError(t, err)
	require.IsType(t, &LogPrinter{}, p)
	require.NoError(t, p.Print(context.Background(), "hello"))

	p, err = NewPrinter(config.PrinterConfig{Kind: "none"}, nil)
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = NewPrinter(config.PrinterConfig{Kind: "network"}, nil)
	require.Error(t, err)

	_, err = NewPrinter(config.PrinterConfig{Kind: "carrier-pigeon"}, nil)
	require.Error(t, err)
}

func TestStubTerminalChargeAndReverse(t *testing.T) {
	term := NewStubTerminal()
	ctx := context.Background()

	res, err := term.Charge(ctx, decimal.NewFromInt(10), "tender-1")
	require.NoError(t, err)
	require.NotEmpty(t, res.Reference)

	again, err := term.Charge(ctx, decimal.NewFromInt(10), "tender-1")
	require.NoError(t, err)
	require.Equal(t, res.Reference, again.Reference)

	require.NoError(t, term.Reverse(ctx, res.Reference, decimal.NewFromInt(10)))
	require.Equal(t, []string{res.Reference}, term.Reversed())
	require.True(t, pkgerrors.IsCode(term.Reverse(ctx, res.Reference, decimal.NewFromInt(10)), pkgerrors.CodeDevice))

	term.Decline = errors.New("card declined")
	_, err = term.Charge(ctx, decimal.NewFromInt(5), "tender-2")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDevice))
}

type fakeSquare struct {
	payment *square.PaymentCreateParams
	refund  *square.RefundParams
	err     error
}

func (f *fakeSquare) CreatePayment(_ context.Context, p square.PaymentCreateParams) (*sq.Payment, error) {
	f.payment = &p
	if f.err != nil {
		return nil, f.err
	}
	id := "pay_42"
	return &sq.Payment{ID: &id}, nil
}

func (f *fakeSquare) RefundPayment(_ context.Context, p square.RefundParams) (*sq.PaymentRefund, error) {
	f.refund = &p
	return &sq.PaymentRefund{}, f.err
}

func TestSquareTerminalCharge(t *testing.T) {
	fake := &fakeSquare{}
	term := &SquareTerminal{client: fake, sourceID: "cnon:card-nonce-ok", currency: enums.CurrencyUSD}

	res, err := term.Charge(context.Background(), decimal.RequireFromString("12.345"), "tender-9")
	require.NoError(t, err)
	require.Equal(t, "pay_42", res.Reference)
	require.True(t, fake.payment.Amount.Equal(decimal.RequireFromString("12.345")))
	require.Equal(t, enums.CurrencyUSD, fake.payment.Currency)
	require.Equal(t, "tender-9", fake.payment.IdempotencyKey)

	require.NoError(t, term.Reverse(context.Background(), "pay_42", decimal.RequireFromString("12.35")))
	require.Equal(t, "pay_42", fake.refund.PaymentID)
	require.Equal(t, int64(1235), fake.refund.Currency.ToMinor(fake.refund.Amount))
}

func TestSquareTerminalKeepsMappedCode(t *testing.T) {
	fake := &fakeSquare{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "square create payment failed")}
	term := &SquareTerminal{client: fake, sourceID: "cnon:card-nonce-ok"}

	_, err := term.Charge(context.Background(), decimal.NewFromInt(1), "tender-1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestWrapTagsDevice(t *testing.T) {
	require.NoError(t, Wrap("scale", nil))
	err := Wrap("scale", errors.New("unstable reading"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeDevice, typed.Code())
	require.Equal(t, map[string]any{"device": "scale"}, typed.Details())
}
