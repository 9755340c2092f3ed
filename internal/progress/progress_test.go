package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLine(t *testing.T) {
	assert.Equal(t, "12.0/60.5 s; 1.5 MB", Line(12, 60.5, 1500000))
	assert.Equal(t, "3.3 s; 13 B", Line(3.3, 0, 13))
}

func TestLinePrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewLinePrinter(&buf)
	assert.False(t, p.tty)

	p.SetFraction(0.5)
	p.SetTime(1, 4)
	p.SetSize(2000)
	p.SetTime(2, 4)
	p.SetSize(4000)
	p.Done()

	assert.Equal(t, "1.0/4.0 s; 2.0 kB\n2.0/4.0 s; 4.0 kB\n", buf.String())
}

func TestLinePrinter_Terminal(t *testing.T) {
	var buf bytes.Buffer
	p := &LinePrinter{w: &buf, tty: true}

	p.Done()
	assert.Empty(t, buf.String())

	p.SetSize(1)
	p.SetSize(2)
	p.Done()
	assert.Equal(t, "\r0.0 s; 1 B\r0.0 s; 2 B\n", buf.String())
}

func TestBar(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf, "clip.flv")
	b.SetFraction(0.25)
	b.SetSize(1024)
	b.SetFraction(2)
	assert.NoError(t, b.Finish())
	assert.True(t, strings.Contains(buf.String(), "clip.flv"))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
