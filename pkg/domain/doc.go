/*
Package domain contains the core models of the docflow engine.

It defines the document handle a workflow operates on, the state chart
definitions that drive it, request records and the hints snapshot returned
to callers. The package has no I/O and no dependencies beyond the standard
library.

# Key Entities

  - DocumentHandle: workflow-scoped view of a content item (variants, requests, state pointer).
  - Chart: immutable definition of states, guarded transitions and actions.
  - Request: persisted intention to publish, depublish or delete, possibly scheduled.
  - Hints: immutable snapshot of which events are currently allowed.
  - Result: outcome of one invocation (taken, not applicable, denied or failed).
*/
package domain
