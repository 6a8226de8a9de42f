// Package pushsubscription stores browser Web Push subscriptions used to
// mirror board notifications to subscribed clients.
package pushsubscription

import (
	"context"
	"time"
)

type Subscription struct {
	ID        string    `yaml:"id"`
	Endpoint  string    `yaml:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key"`
	AuthKey   string    `yaml:"auth_key"`
	CreatedAt time.Time `yaml:"created_at"`
}

type Repository interface {
	// Upsert registers a subscription, replacing any existing entry for
	// the same endpoint. Browsers re-register on key rotation.
	Upsert(ctx context.Context, s *Subscription) error
	List(ctx context.Context) ([]*Subscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}
