package models

const (
	EndpointUpstream        = "/upstream"
	EndpointCarbonIntensity = "/carbon_intensity"
	EndpointMetrics         = "/metrics"
)

type FaultType string

const (
	FaultError   FaultType = "error"
	FaultLatency FaultType = "latency"
)
