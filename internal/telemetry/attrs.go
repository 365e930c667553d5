package telemetry

import "go.opentelemetry.io/otel/attribute"

func statusAttr(status string) attribute.KeyValue {
	return attribute.String("status", status)
}

func actionAttr(action string) attribute.KeyValue {
	return attribute.String("action", action)
}
