// Package observer fans iteration progress out to interested parties.
//
// Every observer registered with a Broadcaster receives every event; there is
// no targeting by client or session. Implementations here cover structured
// logging, a websocket feed for `batchcursor watch`, and a latency histogram
// surfaced by the status API.
package observer
