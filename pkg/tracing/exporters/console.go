package exporters

import (
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
)

// NewConsoleExporter creates a stdout span exporter for local debugging.
func NewConsoleExporter() (*stdouttrace.Exporter, error) {
	return stdouttrace.New(
		stdouttrace.WithWriter(os.Stdout),
		stdouttrace.WithPrettyPrint(),
	)
}
