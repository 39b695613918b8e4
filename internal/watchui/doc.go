// Package watchui renders live cursor progress from the daemon's event
// stream as a terminal dashboard.
package watchui
