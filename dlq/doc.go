// Package dlq is the dead letter queue: jobs that exhausted their retry
// budget land here for operator inspection and replay. Dead-lettered work
// is never silently dropped — every entry keeps the payload, the final
// error, and the tenant it belonged to.
package dlq
