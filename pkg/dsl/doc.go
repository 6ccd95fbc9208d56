/*
Package dsl provides a Go DSL for building docflow charts programmatically.

It lets callers define a chart with a fluent builder instead of a YAML file,
which is handy for generated workflows, tests and IDE type checking. Build
runs the same validation as the chart registry.

Example usage:

	b := dsl.New("review").Describe("Minimal editorial review cycle.")
	b.Initial("draft")
	b.State("review")
	b.Final("published")

	b.On("draft", "submit").
		When(`!hasRequest()`).
		Reason("a request is already pending").
		To("review").
		Do("request", map[string]any{"type": "publish"})

	b.On("review", "approve").
		When(`!isRequester()`).
		To("published").
		Do("acceptRequest", nil).
		Do("publish", nil)

	src, err := dsl.Source(b)
	// ... pass src to docflow.New("", docflow.WithChartSource(src))
*/
package dsl
