/*
Package session serializes access to document handles.

Every invocation on a handle runs inside Manager.WithLock: a local mutex,
reference counted so idle handles leave no entry behind, optionally backed
by a ports.DistributedLocker so that replicas sharing a store take turns.
*/
package session
