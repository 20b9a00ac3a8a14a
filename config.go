package apigen

// Config holds configuration for the generator.
type Config struct {
	// EnableSubscriptions controls whether subscription fields are emitted
	// and entity changes are published on the bus. Defaults to true.
	EnableSubscriptions *bool `json:"enable_subscriptions,omitempty"`

	// MaxBatchSize caps the records list of batch mutations.
	// Zero means unlimited.
	MaxBatchSize int `json:"max_batch_size,omitempty"`

	// SubscriptionBuffer is the per-subscriber channel buffer.
	// Defaults to 16.
	SubscriptionBuffer int `json:"subscription_buffer,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		EnableSubscriptions: &t,
		SubscriptionBuffer:  16,
	}
}

func (c Config) subscriptionsEnabled() bool {
	return c.EnableSubscriptions == nil || *c.EnableSubscriptions
}

func (c Config) subscriptionBuffer() int {
	if c.SubscriptionBuffer > 0 {
		return c.SubscriptionBuffer
	}
	return 16
}
