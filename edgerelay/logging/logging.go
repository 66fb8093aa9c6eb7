// Package logging builds the agent's logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/juju/lumberjack/v2"
	"github.com/sirupsen/logrus"

	rerrors "github.com/nonibytes/edgerelay/edgerelay/errors"
)

type Options struct {
	Level  string
	Format string
	// File, when set, receives a copy of every entry and is rotated by size.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Redact lists substrings that suppress an entry entirely.
	Redact []string
	// Console defaults to stderr.
	Console io.Writer
}

// New returns a configured logger and a closer for its file sink. The
// closer is never nil.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	level := logrus.InfoLevel
	if opts.Level != "" {
		l, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, rerrors.ConfigError(fmt.Sprintf("log level %q: %v", opts.Level, err))
		}
		level = l
	}

	var formatter logrus.Formatter
	switch strings.ToLower(opts.Format) {
	case "", "text":
		formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{}
	default:
		return nil, nil, rerrors.ConfigError(fmt.Sprintf("unknown log format %q", opts.Format))
	}
	if len(opts.Redact) > 0 {
		formatter = &RedactingFormatter{Next: formatter, Markers: opts.Redact}
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	out := console
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(console, lj)
		closer = lj
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(formatter)
	logger.SetOutput(out)
	return logger, closer, nil
}

// Discard is a logger that writes nothing. Used where a caller passes no
// logger.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// RedactingFormatter drops any entry whose message or string fields contain
// one of Markers. Panel responses echo request headers and credentials;
// those lines never reach a sink.
type RedactingFormatter struct {
	Next    logrus.Formatter
	Markers []string
}

func (f *RedactingFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if f.matches(entry.Message) {
		return nil, nil
	}
	for _, v := range entry.Data {
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case error:
			s = x.Error()
		case fmt.Stringer:
			s = x.String()
		default:
			continue
		}
		if f.matches(s) {
			return nil, nil
		}
	}
	return f.Next.Format(entry)
}

func (f *RedactingFormatter) matches(s string) bool {
	for _, m := range f.Markers {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
