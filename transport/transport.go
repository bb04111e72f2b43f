// Package transport declares the contract the asynchronous task runtime
// requires from an external remote-action transport (the UPnP SOAP action
// client, in this service's case). The runtime never implements a transport
// itself; this package only names the shapes it consumes and exposes, plus
// a generic weak-observation helper for proxies the transport owns.
package transport

// Proxy is an opaque handle to a remote service endpoint, owned by the
// device registry (an external collaborator). The runtime only ever reads
// it through a WeakRef, and never extends its lifetime.
type Proxy interface{}

// Outstanding is an opaque handle to a begun, not-yet-completed remote
// action. It is returned by a successful ActionFunc and consumed by the
// transport's Cancel.
type Outstanding interface{}

// ActionFunc drives one step of remote work: invoke an action on proxy and
// either return an Outstanding handle (the action is now in flight and a
// CompletionFunc will fire later) or report failed synchronously. A nil
// Outstanding with failed == false means the step was synchronous and
// completed without any transport round-trip.
type ActionFunc func(proxy Proxy) (outstanding Outstanding, failed bool)

// CompletionFunc is invoked by the transport exactly once per successfully
// begun action, carrying back the proxy, the Outstanding handle that
// completed, and whatever user data the caller attached when it began the
// action.
type CompletionFunc func(proxy Proxy, outstanding Outstanding, userData any)

// Transport is what a concrete remote-action client (e.g. a SOAP/UPnP
// action invoker) must satisfy for the runtime to drive actions through it.
// Begin starts action and arranges for done to be invoked exactly once when
// it completes, unless Cancel is called first. Cancel makes a best-effort
// attempt to interrupt an outstanding action; it does not guarantee done
// will not still fire.
type Transport interface {
	Begin(proxy Proxy, action ActionFunc, done CompletionFunc, userData any) (Outstanding, error)
	Cancel(proxy Proxy, outstanding Outstanding) error
}
