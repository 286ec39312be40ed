package supabase

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"facetalk-backend/internal/config"
)

type Client struct {
	Supabase *supabase.Client
	Config   *config.Config
}

func NewClient(cfg *config.Config) (*Client, error) {
	client, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabasePublishableKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Client{
		Supabase: client,
		Config:   cfg,
	}, nil
}

// Ping issues a HEAD-style count query against user_plans through PostgREST.
// The postgrest client has no context support, so ctx only bounds the wait.
func (c *Client) Ping(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		_, _, err := c.Supabase.From("user_plans").Select("user_id", "exact", true).Limit(1, "").Execute()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to reach supabase: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
