package log

import (
	"fmt"
	"io"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/ethresponder/internal/config"
)

// output is where a logger writes: the console, plus a rotating file when
// one is enabled.
type output struct {
	io.Writer
	file *lumberjack.Logger
}

func newOutput(console io.Writer, fc config.FileOutputConfig) (*output, error) {
	if !fc.Enabled {
		return &output{Writer: console}, nil
	}
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	file := &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}
	return &output{Writer: io.MultiWriter(console, file), file: file}, nil
}

// Close releases the log file. The console is left open.
func (o *output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}
