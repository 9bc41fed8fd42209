package devices

import (
	"bytes"
	"strings"
)

const (
	esc = 0x1B
	gs  = 0x1D
	lf  = 0x0A
)

const (
	alignLeft   = 0
	alignCenter = 1
)

// document builds an ESC/POS byte stream for thermal printers.
type document struct {
	buf bytes.Buffer
}

func newDocument() *document {
	d := &document{}
	d.buf.Write([]byte{esc, '@'})
	return d
}

func (d *document) align(a byte) *document {
	d.buf.Write([]byte{esc, 'a', a})
	return d
}

func (d *document) bold(on bool) *document {
	b := byte(0)
	if on {
		b = 1
	}
	d.buf.Write([]byte{esc, 'E', b})
	return d
}

// text writes receipt text line by line. Lines starting with '*' are printed
// bold and centered, which is how the receipt renderer marks its header.
func (d *document) text(s string) *document {
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if strings.HasPrefix(line, "*") {
			d.align(alignCenter).bold(true)
			d.buf.WriteString(strings.TrimPrefix(line, "*"))
			d.buf.WriteByte(lf)
			d.bold(false).align(alignLeft)
			continue
		}
		d.buf.WriteString(line)
		d.buf.WriteByte(lf)
	}
	return d
}

func (d *document) feed(n int) *document {
	for i := 0; i < n; i++ {
		d.buf.WriteByte(lf)
	}
	return d
}

func (d *document) partialCut() *document {
	d.buf.Write([]byte{gs, 'V', 0x01})
	return d
}

// kickDrawer pulses pin 2, where most printer-driven drawers are wired.
func (d *document) kickDrawer() *document {
	d.buf.Write([]byte{esc, 'p', 0x00, 0x19, 0xFA})
	return d
}

func (d *document) bytes() []byte {
	return d.buf.Bytes()
}
