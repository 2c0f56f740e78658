// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package auth carries the authenticated actor through request contexts.
package auth

import (
	"context"
)

// Actor identifies who issued a request: the signed-in user and the device
// the request came from
type Actor struct {
	UserID   string
	DeviceID string
}

type actorKey struct{}

// WithActor returns a context carrying the actor
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored in ctx, if any
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// UserID returns the user id stored in ctx or an empty string
func UserID(ctx context.Context) string {
	actor, _ := ActorFromContext(ctx)
	return actor.UserID
}
