package devices

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/logger"
)

const (
	PrinterKindNetwork = "network"
	PrinterKindLog     = "log"
	PrinterKindNone    = "none"
)

// NetworkPrinter sends ESC/POS jobs over raw TCP (port 9100). The cash drawer
// hangs off the printer, so it also implements CashDrawer.
type NetworkPrinter struct {
	address string
	timeout time.Duration
	dialer  func(ctx context.Context, network, address string) (net.Conn, error)
}

func NewNetworkPrinter(address string, timeout time.Duration) *NetworkPrinter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	return &NetworkPrinter{address: address, timeout: timeout, dialer: d.DialContext}
}

func (p *NetworkPrinter) Print(ctx context.Context, receipt string) error {
	doc := newDocument().text(receipt).feed(3).partialCut()
	return Wrap("printer", p.send(ctx, doc.bytes()))
}

func (p *NetworkPrinter) OpenDrawer(ctx context.Context) error {
	return Wrap("cash drawer", p.send(ctx, newDocument().kickDrawer().bytes()))
}

func (p *NetworkPrinter) send(ctx context.Context, data []byte) error {
	conn, err := p.dialer(ctx, "tcp", p.address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", p.address, err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write to %s: %w", p.address, err)
	}
	return nil
}

// LogPrinter writes receipts to the structured log. Used on dev registers
// without hardware.
type LogPrinter struct {
	logg *logger.Logger
}

func NewLogPrinter(logg *logger.Logger) *LogPrinter {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogPrinter{logg: logg}
}

func (p *LogPrinter) Print(ctx context.Context, receipt string) error {
	p.logg.Info(p.logg.WithField(ctx, "receipt", receipt), "receipt printed")
	return nil
}

func (p *LogPrinter) OpenDrawer(ctx context.Context) error {
	p.logg.Info(ctx, "cash drawer opened")
	return nil
}

// NewPrinter picks the printer for the configured kind. The returned value
// also serves as the cash drawer; it is nil for kind "none".
func NewPrinter(cfg config.PrinterConfig, logg *logger.Logger) (interface {
	Printer
	CashDrawer
}, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case PrinterKindNetwork:
		if strings.TrimSpace(cfg.Address) == "" {
			return nil, fmt.Errorf("printer address is required for %q printers", PrinterKindNetwork)
		}
		return NewNetworkPrinter(cfg.Address, cfg.Timeout), nil
	case PrinterKindLog, "":
		return NewLogPrinter(logg), nil
	case PrinterKindNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported printer kind %q", cfg.Kind)
	}
}
