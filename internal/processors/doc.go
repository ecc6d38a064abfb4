// Package processors contains the job processors registered with the
// worker registry. Each processor parses its job payload, delegates the
// business call to a collaborator interface, and memoizes the result
// through the cache service so repeated jobs for the same subject and
// date bucket reuse prior output instead of hitting external APIs again.
package processors
