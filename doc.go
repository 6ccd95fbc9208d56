/*
Package docflow is a document workflow engine driven by declarative state charts.

A chart describes the lifecycle of a document: its states, the events that move
it between them, the guards that decide who may fire an event, and the tasks that
do the work (copying variants, publishing, recording requests). The engine loads
a document handle, fires one event against it, persists the result and tells the
caller which events are available next.

# Concept

The engine holds no per-document state. Every invocation loads the handle from a
ports.HandleStore, resolves its chart from a cached chart.Registry, runs the
matching transition and saves the new handle with optimistic versioning.
Invocations on the same handle are serialized; different handles run fully in
parallel and only share the read-only chart cache.

Scheduled publication is not driven by timers inside the engine. A scheduled
request is recorded on the handle and a scheduler.Scheduler fires the matching
event once it is due.

# Usage

	eng, err := docflow.New("./charts", docflow.WithStore(file.New(".docflow/handles")))
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if _, err := eng.Create(ctx, "doc-1", "review", map[string]any{"title": "Hello"}); err != nil {
		log.Fatal(err)
	}

	res, err := eng.Invoke(ctx, docflow.InvokeRequest{HandleID: "doc-1", Event: "submit", Identity: "alice"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Outcome, res.State, res.Hints.Events())

# Outcomes

Invoke distinguishes four outcomes on the returned domain.Result:

  - taken: a transition fired and every action succeeded.
  - denied: the event exists in the current state but every guard refused it.
  - not_applicable: the current state has no transition for the event.
  - failed: a task failed; the state pointer is unchanged.

Errors are reserved for unknown handles, broken charts and store conflicts.
*/
package docflow
