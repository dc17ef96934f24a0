package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"chip-ledger/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu     sync.Mutex
	sink   io.Writer = os.Stdout
	closer io.Closer
)

// Init installs the global zerolog logger. It may be called again; the
// previous log file, if any, is closed.
func Init(cfg config.LogConfig) error {
	level := zerolog.InfoLevel
	if v := strings.TrimSpace(cfg.Level); v != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(v)); err == nil {
			level = parsed
		}
	}

	var out io.Writer = os.Stdout
	var fileCloser io.Closer
	if path := strings.TrimSpace(cfg.File); path != "" {
		fw, err := newSizeLimitedWriter(path, cfg.MaxMB)
		if err != nil {
			return err
		}
		out = io.MultiWriter(os.Stdout, fw)
		fileCloser = fw
	}

	mu.Lock()
	if closer != nil {
		_ = closer.Close()
	}
	sink = out
	closer = fileCloser
	mu.Unlock()

	var console io.Writer = out
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: out}
	}

	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(console).With().Timestamp().Logger()
	if cfg.SampleEvery > 1 {
		logger = logger.Sample(&zerolog.BasicSampler{N: uint32(cfg.SampleEvery)})
	}
	log.Logger = logger
	return nil
}

// Writer is the raw sink behind the global logger, for request loggers
// that format their own lines.
func Writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return sink
}

// Close releases the log file opened by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	sink = os.Stdout
	return err
}
