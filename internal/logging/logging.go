package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Factory создаёт логгеры компонентов с общим уровнем и форматом.
// Поле component задаётся один раз: zerolog не склеивает повторные ключи.
type Factory struct {
	Level  string
	Pretty bool
	Out    io.Writer // nil - os.Stderr
}

// For возвращает логгер компонента
func (f Factory) For(component string) zerolog.Logger {
	out := f.Out
	if out == nil {
		out = os.Stderr
	}
	if f.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(f.Level)
	if err != nil || f.Level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// New создаёт логгер с уровнем level ("debug", "info", ...). При pretty
// вывод идёт в консольном формате.
func New(component, level string, pretty bool) zerolog.Logger {
	return Factory{Level: level, Pretty: pretty}.For(component)
}
