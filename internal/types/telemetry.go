package types

// Telemetry metric names shared by the Prometheus and CloudWatch backends.
// All components MUST use these constants.
const (
	// Metric Names
	MetricAPILatency         = "APILatency"
	MetricAPIRequestCount    = "APIRequestCount"
	MetricProviderCall       = "ProviderCall"
	MetricProviderLatency    = "ProviderLatency"
	MetricHistoryCacheResult = "HistoryCacheResult"
	MetricInsufficientData   = "InsufficientData"
	MetricPrefetchProcessed  = "PrefetchProcessed"

	// Dimension Keys
	DimEndpoint = "Endpoint"
	DimMethod   = "Method"
	DimStatus   = "Status"
	DimProvider = "Provider"
	DimResult   = "Result"

	// Metric Namespace
	MetricNamespace = "WillItRain"
)

// Provider names used as the Provider dimension.
const (
	ProviderNASAPower = "nasa_power"
	ProviderOpenMeteo = "open_meteo"
)
