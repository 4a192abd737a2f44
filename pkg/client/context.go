package client

import (
	"context"
)

type clientCtxKey struct{}

func FromContext(ctx context.Context) *QueryClient {
	client, ok := ctx.Value(clientCtxKey{}).(*QueryClient)
	if !ok {
		return nil
	}
	return client
}

func IntoContext(ctx context.Context, client *QueryClient) context.Context {
	return context.WithValue(ctx, clientCtxKey{}, client)
}
