/*
Package observability turns model lifecycle hooks into logs and Prometheus
metrics.

Hooks run on the model executor, so everything here only records and returns.
Combine several hook sets with Combine and pass the result to
arbor.WithLifecycleHooks.
*/
package observability
