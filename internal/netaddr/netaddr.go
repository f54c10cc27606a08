// Package netaddr holds the type constraint every logical network address
// used with this module must satisfy.
package netaddr

// Address is the capability an application-defined logical node identity
// must provide: value equality (via comparable, so the network map can use
// plain == instead of a user-supplied Equal method) and a way to tell the
// one broadcast variant of the address space apart from every unicast one.
type Address interface {
	comparable
	IsBroadcast() bool
}
