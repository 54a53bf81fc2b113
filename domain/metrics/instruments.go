package metrics

// Names of the instruments the service registers at startup.
const (
	RequestLatencySeconds = "request_latency_seconds"
	HTTPRequestsTotal     = "http_requests_total"

	CPUUsagePercent      = "cpu_usage_percent"
	MemoryUsagePercent   = "memory_usage_percent"
	DiskIOReadBytes      = "disk_io_read_bytes"
	DiskIOWriteBytes     = "disk_io_write_bytes"
	DiskIOReadTimeMs     = "disk_io_read_time_ms"
	DiskIOWriteTimeMs    = "disk_io_write_time_ms"
	NetworkBytesSent     = "network_bytes_sent"
	NetworkBytesReceived = "network_bytes_received"
	FilesystemUsedBytes  = "filesystem_used_bytes"
	FilesystemUsage      = "filesystem_usage_percent"

	RuntimeGoroutines     = "runtime_goroutines"
	RuntimeMemAllocBytes  = "runtime_memory_alloc_bytes"
	RuntimeHeapAllocBytes = "runtime_memory_heap_alloc_bytes"
	RuntimeHeapSysBytes   = "runtime_memory_heap_sys_bytes"

	DBQueriesTotal         = "db_queries_total"
	DBRepeatedQueriesTotal = "db_repeated_queries_total"

	CollaboratorRequestsTotal  = "collaborator_requests_total"
	CollaboratorFailuresTotal  = "collaborator_failures_total"
	CollaboratorLatencySeconds = "collaborator_request_latency_seconds"
)

// Defaults returns the full instrument catalogue of the service.
func Defaults() []Definition {
	return []Definition{
		{RequestLatencySeconds, Summary, "Latency of HTTP requests in seconds"},
		{HTTPRequestsTotal, Counter, "Total number of handled HTTP requests"},

		{CPUUsagePercent, Gauge, "CPU usage percentage"},
		{MemoryUsagePercent, Gauge, "Memory usage percentage"},
		{DiskIOReadBytes, Gauge, "Disk I/O read in bytes"},
		{DiskIOWriteBytes, Gauge, "Disk I/O write in bytes"},
		{DiskIOReadTimeMs, Gauge, "Time spent reading from disk in milliseconds"},
		{DiskIOWriteTimeMs, Gauge, "Time spent writing to disk in milliseconds"},
		{NetworkBytesSent, Gauge, "Network bytes sent"},
		{NetworkBytesReceived, Gauge, "Network bytes received"},
		{FilesystemUsedBytes, Gauge, "Used bytes on the monitored filesystem"},
		{FilesystemUsage, Gauge, "Usage percentage of the monitored filesystem"},

		{RuntimeGoroutines, Gauge, "Number of goroutines"},
		{RuntimeMemAllocBytes, Gauge, "Bytes of allocated heap objects"},
		{RuntimeHeapAllocBytes, Gauge, "Bytes of in-use heap spans"},
		{RuntimeHeapSysBytes, Gauge, "Bytes of heap memory obtained from the OS"},

		{DBQueriesTotal, Counter, "Database queries executed"},
		{DBRepeatedQueriesTotal, Counter, "Statements repeated within one request at or above the detection threshold"},

		{CollaboratorRequestsTotal, Counter, "Requests sent to the resource-metrics collaborator"},
		{CollaboratorFailuresTotal, Counter, "Failed requests to the resource-metrics collaborator"},
		{CollaboratorLatencySeconds, Summary, "Latency of collaborator requests in seconds"},
	}
}
