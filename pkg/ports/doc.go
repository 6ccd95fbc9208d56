/*
Package ports defines the driven ports (interfaces) for the docflow engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends and chart sources.

# Key Interfaces

  - ChartSource: Responsible for loading raw chart definitions (e.g., from Loam, a directory or memory).
  - HandleStore: Responsible for persisting and loading document handles with optimistic versioning.
  - ScheduleIndex: Lists scheduled requests that are due, for the external scheduler.
  - DistributedLocker: Provides distributed locking for serializing invocations on one handle.
*/
package ports
