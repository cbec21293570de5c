// Package consumer delivers decoded feed records to downstream sinks.
//
// The stream reader hands records to a Dispatcher, which never blocks: it
// queues the record for a worker or drops it when the queue is full.
// Consumer errors and panics are logged and counted here and never reach
// the stream engine.
package consumer
