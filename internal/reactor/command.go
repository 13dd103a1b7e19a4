package reactor

// Command is a unit of work a Service's owner goroutine drains from
// its inbound command queue, one per tick (spec.md §4.6). Concrete
// command types (RpcCmd::Send, RpcCmd::Disconnect,
// ImporterCmd::TrackTxid, ImporterCmd::Untrack, ...) are defined by
// the package that owns the Controller; the reactor only transports
// them.
type Command interface{}

// CommandQueueCapacity bounds a service's inbound command queue.
// Grounded on original_source's src/msgbus/command.rs and src/msgbus/proc,
// which size the equivalent ring at 1024 entries per service.
const CommandQueueCapacity = 1024
