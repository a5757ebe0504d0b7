package metrics

import "context"

type jobNameKey struct{}

// WithJobName returns a copy of ctx carrying the job name used as a metric label.
func WithJobName(ctx context.Context, jobName string) context.Context {
	return context.WithValue(ctx, jobNameKey{}, jobName)
}

// JobNameFromContext returns the job name carried by ctx, or "unknown".
func JobNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(jobNameKey{}).(string); ok && name != "" {
		return name
	}
	return "unknown"
}
