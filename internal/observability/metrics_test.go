package observability

import (
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/linkctl/internal/logging"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	logging.ConfigureTests()
	RegisterMetrics()
	RegisterMetrics()

	RecordConnectionOpened("client")
	RecordConnectionClosed("client", CloseCauseShutdown)
	RecordConnectionClosed("server", CloseCauseFatal)
	RecordMessageRead()
	RecordMessageWritten()
	RecordWriteFailure()
	RecordReadError(ReadErrorKindStream)
	RecordReadError(ReadErrorKindFatal)

	log.Info().Msg("registration idempotent and recording paths executed")
}
