// Package waiter holds the pharmacy order domain: order lifecycle flags,
// due-time arithmetic, the board visibility rules and the configurable
// settings they depend on.
//
// Nothing here touches storage, the network or the wall clock; every
// time-dependent function takes "now" explicitly.
package waiter
