package param

import "context"

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
}

// Resolve returns literal when set, otherwise the value stored at path.
// Both empty resolves to the empty string.
func Resolve(ctx context.Context, f Fetcher, literal, path string) (string, error) {
	if literal != "" || path == "" {
		return literal, nil
	}
	return f.Fetch(ctx, path)
}
