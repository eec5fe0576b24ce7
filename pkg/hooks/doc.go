// Package hooks runs operator-supplied shell scripts on gateway lifecycle events.
//
// Each hook receives the event name in TOOLGATE_HOOK_EVENT, every data field as
// TOOLGATE_HOOK_DATA_<KEY> and the whole data map as JSON in TOOLGATE_HOOK_PAYLOAD.
package hooks
