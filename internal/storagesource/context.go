package storagesource

import "context"

type secretKey struct{}

// WithSecret returns a context carrying an unlock secret for ContextPrompter.
func WithSecret(ctx context.Context, secret string) context.Context {
	return context.WithValue(ctx, secretKey{}, secret)
}

// SecretFromContext returns the secret stored by WithSecret.
func SecretFromContext(ctx context.Context) (string, bool) {
	secret, ok := ctx.Value(secretKey{}).(string)
	return secret, ok && secret != ""
}

// ContextPrompter answers unlock prompts with the secret carried by the
// context, for callers that cannot ask interactively. Without a secret it
// behaves like a cancelled prompt.
type ContextPrompter struct{}

func (ContextPrompter) Prompt(ctx context.Context, _ string, props UnlockProps) (*UnlockAction, error) {
	secret, ok := SecretFromContext(ctx)
	if !ok || len(props.EncryptedData) == 0 {
		return nil, nil
	}
	return Unlock(props.EncryptedData, secret)
}
