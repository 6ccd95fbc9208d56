/*
Package observability turns engine lifecycle hooks into metrics and audit logs.

Both helpers return domain.LifecycleHooks, which can be combined with
LifecycleHooks.Merge and passed to the engine:

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.AuditHooks(logger))
	engine, err := docflow.New("charts", docflow.WithLifecycleHooks(hooks))
*/
package observability
