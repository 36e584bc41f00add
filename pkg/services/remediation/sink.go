package remediation

import "github.com/rs/zerolog"

type logSink struct {
	logger zerolog.Logger
}

// NewLogSink returns an AdvisorySink that writes each advisory as a
// structured warning with the finding's detail attached.
func NewLogSink(logger zerolog.Logger) AdvisorySink {
	return &logSink{logger: logger}
}

func (s *logSink) Emit(line string, detail map[string]any) {
	s.logger.Warn().Fields(detail).Msg(line)
}
