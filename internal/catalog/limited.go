package catalog

import (
	"context"
)

// Waiter admits a caller once the request budget allows it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// rateLimitedClient gates every call through a limiter for its endpoint class.
type rateLimitedClient struct {
	next   Client
	list   Waiter
	detail Waiter
}

// NewRateLimitedClient wraps next so that subject listing and lookups wait on
// list, while character endpoints wait on detail. The upstream budgets these
// endpoint classes separately.
func NewRateLimitedClient(next Client, list, detail Waiter) Client {
	return &rateLimitedClient{next: next, list: list, detail: detail}
}

func (c *rateLimitedClient) ListSubjects(ctx context.Context, filter Filter, limit, offset int) (*Page, error) {
	if err := c.list.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.ListSubjects(ctx, filter, limit, offset)
}

func (c *rateLimitedClient) GetSubject(ctx context.Context, id int64) (*Subject, error) {
	if err := c.list.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GetSubject(ctx, id)
}

func (c *rateLimitedClient) ListRelatedCharacters(ctx context.Context, subjectID int64) ([]RelatedCharacter, error) {
	if err := c.detail.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.ListRelatedCharacters(ctx, subjectID)
}

func (c *rateLimitedClient) GetCharacter(ctx context.Context, id int64) (*Character, error) {
	if err := c.detail.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.GetCharacter(ctx, id)
}
