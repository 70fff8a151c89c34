package logger

import "fmt"

// Prefixed logs every message with a "[name] " prefix, so the output of the two
// parties of a swap can be told apart.
type Prefixed struct {
	prefix string
}

func WithPrefix(name string) *Prefixed {
	return &Prefixed{prefix: "[" + name + "] "}
}

func (p *Prefixed) Debugf(format string, args ...any) {
	Debug(p.prefix + fmt.Sprintf(format, args...))
}

func (p *Prefixed) Infof(format string, args ...any) {
	Info(p.prefix + fmt.Sprintf(format, args...))
}

func (p *Prefixed) Warnf(format string, args ...any) {
	Warn(p.prefix + fmt.Sprintf(format, args...))
}

func (p *Prefixed) Errorf(format string, args ...any) {
	Error(p.prefix + fmt.Sprintf(format, args...))
}
