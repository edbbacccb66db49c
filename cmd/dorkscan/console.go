package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// console prints progress for humans. Dispatcher hooks run on worker
// goroutines, so every method serializes on mu.
type console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer

	ok   *color.Color
	info *color.Color
	warn *color.Color
	fail *color.Color
}

func newConsole(out, errOut io.Writer) *console {
	return &console{
		out:  out,
		err:  errOut,
		ok:   color.New(color.FgGreen),
		info: color.New(color.FgCyan),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
	}
}

func (c *console) Printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) Successf(format string, args ...any) {
	c.line(c.out, c.ok, "[+] ", format, args...)
}

func (c *console) Infof(format string, args ...any) {
	c.line(c.out, c.info, "[*] ", format, args...)
}

func (c *console) Warnf(format string, args ...any) {
	c.line(c.err, c.warn, "[!] ", format, args...)
}

func (c *console) Errorf(format string, args ...any) {
	c.line(c.err, c.fail, "[x] ", format, args...)
}

func (c *console) line(w io.Writer, col *color.Color, prefix, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(w, col.Sprint(prefix+fmt.Sprintf(format, args...)))
}
